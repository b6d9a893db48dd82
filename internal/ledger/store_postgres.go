package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// PostgresStore persists the ledger with a gapless sequence. Appends run in a
// single transaction that locks the counter row, so the counter only advances
// when the insert commits; a rollback leaves no gap. The row lock also
// serializes concurrent appends, which keeps the hash chain linear.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, record *DecisionRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.AppendTx(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// AppendTx appends within a caller-owned transaction. The transfer and
// onboarding stores use this so a decision record commits or rolls back
// together with the holding mutation it justifies.
func (s *PostgresStore) AppendTx(ctx context.Context, tx pgx.Tx, record *DecisionRecord) error {
	var seq int64
	err := tx.QueryRow(ctx, `
		UPDATE ledger_sequence SET last_seq = last_seq + 1 RETURNING last_seq
	`).Scan(&seq)
	if err != nil {
		return fmt.Errorf("advance ledger sequence: %w", err)
	}
	record.SequenceNumber = seq

	prevHash := ""
	if seq > 1 {
		err = tx.QueryRow(ctx, `
			SELECT record_hash FROM decision_records WHERE sequence_number = $1
		`, seq-1).Scan(&prevHash)
		if err != nil {
			return fmt.Errorf("read predecessor hash: %w", err)
		}
	}
	seal(prevHash, record)

	details, err := json.Marshal(record.ResultDetails)
	if err != nil {
		return fmt.Errorf("marshal result details: %w", err)
	}

	var assetID *uuid.UUID
	if record.AssetID != nil {
		a := uuid.UUID(*record.AssetID)
		assetID = &a
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO decision_records (
			id, sequence_number, decision_type, asset_id, subject_id,
			input_snapshot, rule_versions, result, result_details,
			decided_by, decided_at, prev_hash, record_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(record.ID), record.SequenceNumber, string(record.DecisionType),
		assetID, record.SubjectID,
		[]byte(record.InputSnapshot), []byte(record.RuleVersions),
		string(record.Result), details,
		record.DecidedBy, record.DecidedAt, record.PrevHash, record.RecordHash,
	)
	if err != nil {
		return fmt.Errorf("insert decision record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, decisionID id.DecisionID) (*DecisionRecord, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM decision_records WHERE id = $1`, uuid.UUID(decisionID))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get decision record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID, from, to time.Time) ([]*DecisionRecord, error) {
	query := selectColumns + ` FROM decision_records WHERE asset_id = $1`
	args := []any{uuid.UUID(assetID)}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND decided_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND decided_at <= $%d", len(args))
	}
	query += " ORDER BY sequence_number"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decision records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*DecisionRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` FROM decision_records ORDER BY sequence_number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decision records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ListBySequence(ctx context.Context, afterSeq int64, limit int) ([]*DecisionRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` FROM decision_records WHERE sequence_number > $1 ORDER BY sequence_number LIMIT $2`,
		afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list decision records by sequence: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

const selectColumns = `
	SELECT id, sequence_number, decision_type, asset_id, subject_id,
	       input_snapshot, rule_versions, result, result_details,
	       decided_by, decided_at, prev_hash, record_hash`

func scanRecord(row pgx.Row) (*DecisionRecord, error) {
	var r DecisionRecord
	var rid uuid.UUID
	var assetID *uuid.UUID
	var decisionType, result string
	var details []byte

	err := row.Scan(
		&rid, &r.SequenceNumber, &decisionType, &assetID, &r.SubjectID,
		&r.InputSnapshot, &r.RuleVersions, &result, &details,
		&r.DecidedBy, &r.DecidedAt, &r.PrevHash, &r.RecordHash,
	)
	if err != nil {
		return nil, err
	}

	r.ID = id.DecisionID(rid)
	r.DecisionType = id.DecisionType(decisionType)
	r.Result = id.DecisionResult(result)
	if assetID != nil {
		a := id.AssetID(*assetID)
		r.AssetID = &a
	}
	if err := json.Unmarshal(details, &r.ResultDetails); err != nil {
		return nil, fmt.Errorf("unmarshal result details: %w", err)
	}
	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]*DecisionRecord, error) {
	var out []*DecisionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
