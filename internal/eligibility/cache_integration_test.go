//go:build integration

package eligibility

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	platformredis "custos/internal/platform/redis"
	id "custos/pkg/domain"
)

func setupRedis(t *testing.T) *platformredis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(addr)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return &platformredis.Client{Client: client}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore wraps the memory store to observe read-through traffic.
type countingStore struct {
	*InMemoryStore
	calls int
}

func (s *countingStore) ListApplicable(ctx context.Context, fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string, at time.Time) ([]*Criterion, error) {
	s.calls++
	return s.InMemoryStore.ListApplicable(ctx, fundID, investorType, jurisdiction, at)
}

func TestIntegration_CachedCriteriaStore_ReadThrough(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	inner := &countingStore{InMemoryStore: NewInMemoryStore()}
	cached := NewCachedCriteriaStore(inner, client, time.Minute, discardLogger())

	fundID := id.NewFundStructureID()
	criterion := &Criterion{
		ID:              id.NewCriterionID(),
		FundStructureID: fundID,
		Jurisdiction:    "DE",
		InvestorType:    id.InvestorTypeProfessional,
		SourceReference: "AIFMD Annex II",
		EffectiveDate:   now.AddDate(-1, 0, 0),
	}
	inner.Put(criterion)

	// Cold read hits the store and warms the cache.
	first, err := cached.ListApplicable(ctx, fundID, id.InvestorTypeProfessional, "DE", now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, inner.calls)

	// Warm read is served from the cache and matches the store's answer.
	second, err := cached.ListApplicable(ctx, fundID, id.InvestorTypeProfessional, "DE", now)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].SourceReference, second[0].SourceReference)
}

// TestIntegration_CachedCriteriaStore_RechecksApplicability supersedes a row
// inside the TTL window and expects cached copies to stop applying it.
func TestIntegration_CachedCriteriaStore_RechecksApplicability(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	inner := NewInMemoryStore()
	cached := NewCachedCriteriaStore(inner, client, time.Hour, discardLogger())

	fundID := id.NewFundStructureID()
	supersededAt := now.AddDate(0, 0, 1)
	inner.Put(&Criterion{
		ID:              id.NewCriterionID(),
		FundStructureID: fundID,
		Jurisdiction:    "*",
		InvestorType:    id.InvestorTypeRetail,
		EffectiveDate:   now.AddDate(-1, 0, 0),
		SupersededAt:    &supersededAt,
	})

	warm, err := cached.ListApplicable(ctx, fundID, id.InvestorTypeRetail, "FR", now)
	require.NoError(t, err)
	require.Len(t, warm, 1)

	// The cached row is present but no longer effective at the later time.
	after, err := cached.ListApplicable(ctx, fundID, id.InvestorTypeRetail, "FR", now.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestIntegration_CachedCriteriaStore_CorruptEntryFallsThrough(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	inner := NewInMemoryStore()
	cached := NewCachedCriteriaStore(inner, client, time.Minute, discardLogger())

	fundID := id.NewFundStructureID()
	inner.Put(&Criterion{
		ID:              id.NewCriterionID(),
		FundStructureID: fundID,
		Jurisdiction:    "DE",
		InvestorType:    id.InvestorTypeProfessional,
		EffectiveDate:   now.AddDate(-1, 0, 0),
	})

	key := criteriaKey(fundID, id.InvestorTypeProfessional, "DE")
	require.NoError(t, client.Set(ctx, key, "not json", time.Minute).Err())

	rows, err := cached.ListApplicable(ctx, fundID, id.InvestorTypeProfessional, "DE", now)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
