package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "custos/internal/platform/redis"
	id "custos/pkg/domain"
)

// CachedCriteriaStore is a read-through cache in front of a CriteriaStore.
// Criteria rows are owned by fund configuration and change rarely; the TTL
// bounds how long a superseded row can keep being applied. Cache failures
// degrade to the underlying store.
type CachedCriteriaStore struct {
	inner  CriteriaStore
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCriteriaStore(inner CriteriaStore, client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *CachedCriteriaStore {
	return &CachedCriteriaStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func criteriaKey(fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string) string {
	return fmt.Sprintf("custos:criteria:%s:%s:%s", fundID, investorType, jurisdiction)
}

func (s *CachedCriteriaStore) ListApplicable(ctx context.Context, fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string, at time.Time) ([]*Criterion, error) {
	key := criteriaKey(fundID, investorType, jurisdiction)

	payload, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []*Criterion
		if err := json.Unmarshal(payload, &rows); err == nil {
			// Applicability is re-checked against the cached rows so a
			// criterion that became effective or superseded inside the
			// TTL window is still honored.
			applicable := rows[:0]
			for _, row := range rows {
				if row.ApplicableAt(at) {
					applicable = append(applicable, row)
				}
			}
			return applicable, nil
		}
		s.logger.WarnContext(ctx, "criteria cache entry corrupt, falling through", "key", key)
	case errors.Is(err, goredis.Nil):
		// miss
	default:
		s.logger.WarnContext(ctx, "criteria cache read failed, falling through",
			"key", key,
			"error", err,
		)
	}

	rows, err := s.inner.ListApplicable(ctx, fundID, investorType, jurisdiction, at)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(rows); err == nil {
		if err := s.client.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "criteria cache write failed",
				"key", key,
				"error", err,
			)
		}
	}
	return rows, nil
}
