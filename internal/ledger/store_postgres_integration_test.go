//go:build integration

package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	id "custos/pkg/domain"
)

const ledgerSchema = `
	CREATE TABLE ledger_sequence (
		last_seq BIGINT NOT NULL
	);
	INSERT INTO ledger_sequence (last_seq) VALUES (0);

	CREATE TABLE decision_records (
		id UUID PRIMARY KEY,
		sequence_number BIGINT NOT NULL UNIQUE,
		decision_type TEXT NOT NULL,
		asset_id UUID,
		subject_id TEXT NOT NULL,
		input_snapshot JSONB NOT NULL,
		rule_versions JSONB NOT NULL,
		result TEXT NOT NULL,
		result_details JSONB NOT NULL,
		decided_by TEXT NOT NULL,
		decided_at TIMESTAMPTZ NOT NULL,
		prev_hash TEXT NOT NULL,
		record_hash TEXT NOT NULL
	);
	CREATE INDEX decision_records_asset_idx
		ON decision_records (asset_id, sequence_number);
`

// setupPool starts a disposable PostgreSQL container, applies the ledger
// schema, and returns a connected pool.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("custos_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, ledgerSchema)
	require.NoError(t, err)

	return pool
}

func testDraftRecord(subject string) *DecisionRecord {
	return &DecisionRecord{
		ID:            id.NewDecisionID(),
		DecisionType:  id.DecisionTypeTransferValidation,
		SubjectID:     subject,
		InputSnapshot: json.RawMessage(`{"units":100}`),
		RuleVersions:  json.RawMessage(`{}`),
		Result:        id.DecisionResultApproved,
		ResultDetails: ResultDetails{Overall: "approved"},
		DecidedBy:     "integration",
		DecidedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestIntegration_PostgresStore_AppendAndGet(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	written := testDraftRecord("inv-1")
	require.NoError(t, store.Append(ctx, written))
	assert.Equal(t, int64(1), written.SequenceNumber)
	assert.Equal(t, genesisHash, written.PrevHash)

	read, err := store.GetByID(ctx, written.ID)
	require.NoError(t, err)
	assert.Equal(t, written.InputSnapshot, read.InputSnapshot)
	assert.Equal(t, written.RecordHash, read.RecordHash)
	assert.Equal(t, written.DecidedAt, read.DecidedAt)
}

// TestIntegration_PostgresStore_GaplessSequence runs concurrent appends plus
// one deliberately rolled-back transaction and checks the sequence has no
// gaps and no duplicates.
func TestIntegration_PostgresStore_GaplessSequence(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, store.Append(ctx, testDraftRecord("concurrent")))
			}
		}()
	}
	wg.Wait()

	// A rollback must not burn a sequence number.
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, store.AppendTx(ctx, tx, testDraftRecord("rolled-back")))
	require.NoError(t, tx.Rollback(ctx))

	after := testDraftRecord("after-rollback")
	require.NoError(t, store.Append(ctx, after))
	assert.Equal(t, int64(writers*perWriter+1), after.SequenceNumber)

	records, err := store.ListBySequence(ctx, 0, 1000)
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter+1)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.SequenceNumber)
		if i > 0 {
			assert.Equal(t, records[i-1].RecordHash, r.PrevHash)
		}
	}
}

func TestIntegration_PostgresStore_Listings(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	assetID := id.NewAssetID()
	for i := 0; i < 3; i++ {
		r := testDraftRecord("inv-2")
		a := assetID
		r.AssetID = &a
		require.NoError(t, store.Append(ctx, r))
	}
	require.NoError(t, store.Append(ctx, testDraftRecord("inv-3")))

	byAsset, err := store.ListByAsset(ctx, assetID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, byAsset, 3)
	assert.True(t, byAsset[0].SequenceNumber < byAsset[1].SequenceNumber)

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "inv-3", recent[0].SubjectID)
	assert.True(t, recent[0].SequenceNumber > recent[1].SequenceNumber)
}
