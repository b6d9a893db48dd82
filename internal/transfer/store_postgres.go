package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"custos/internal/ledger"
	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// PostgresHoldingStore persists holdings with pgx. The mutation paths run in
// a single transaction with row-level locks; the decision record is appended
// through the ledger store inside the same transaction, so a rollback undoes
// both the unit move and the record.
type PostgresHoldingStore struct {
	pool   *pgxpool.Pool
	ledger *ledger.PostgresStore
}

func NewPostgresHoldingStore(pool *pgxpool.Pool, ledgerStore *ledger.PostgresStore) *PostgresHoldingStore {
	return &PostgresHoldingStore{pool: pool, ledger: ledgerStore}
}

func (s *PostgresHoldingStore) GetHolding(ctx context.Context, investorID id.InvestorID, assetID id.AssetID) (*Holding, error) {
	var (
		holding Holding
		hid     uuid.UUID
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, units, acquired_at
		FROM holdings
		WHERE investor_id = $1 AND asset_id = $2`,
		uuid.UUID(investorID), uuid.UUID(assetID),
	).Scan(&hid, &holding.Units, &holding.AcquiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get holding: %w", err)
	}
	holding.ID = id.HoldingID(hid)
	holding.InvestorID = investorID
	holding.AssetID = assetID
	return &holding, nil
}

func (s *PostgresHoldingStore) AllocatedUnits(ctx context.Context, assetID id.AssetID) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(units), 0) FROM holdings WHERE asset_id = $1`,
		uuid.UUID(assetID),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum allocated units: %w", err)
	}
	return total, nil
}

func (s *PostgresHoldingStore) ExecuteTransfer(ctx context.Context, t *Transfer, record *ledger.DecisionRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both parties' holdings in investor order so two opposing
	// transfers cannot deadlock.
	rows, err := tx.Query(ctx, `
		SELECT investor_id, units
		FROM holdings
		WHERE asset_id = $1 AND investor_id = ANY($2)
		ORDER BY investor_id
		FOR UPDATE`,
		uuid.UUID(t.AssetID),
		[]uuid.UUID{uuid.UUID(t.FromInvestorID), uuid.UUID(t.ToInvestorID)},
	)
	if err != nil {
		return fmt.Errorf("lock holdings: %w", err)
	}
	senderUnits := int64(-1)
	for rows.Next() {
		var investorID uuid.UUID
		var units int64
		if err := rows.Scan(&investorID, &units); err != nil {
			rows.Close()
			return fmt.Errorf("scan locked holding: %w", err)
		}
		if id.InvestorID(investorID) == t.FromInvestorID {
			senderUnits = units
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock holdings: %w", err)
	}
	if senderUnits < t.Units {
		return sentinel.ErrInsufficientUnits
	}

	if err := s.ledger.AppendTx(ctx, tx, record); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE holdings SET units = units - $3
		WHERE asset_id = $1 AND investor_id = $2`,
		uuid.UUID(t.AssetID), uuid.UUID(t.FromInvestorID), t.Units,
	)
	if err != nil {
		return fmt.Errorf("debit sender holding: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO holdings (id, investor_id, asset_id, units, acquired_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (investor_id, asset_id)
		DO UPDATE SET units = holdings.units + EXCLUDED.units`,
		uuid.New(), uuid.UUID(t.ToInvestorID), uuid.UUID(t.AssetID), t.Units, t.ExecutionDate,
	)
	if err != nil {
		return fmt.Errorf("credit receiver holding: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transfers (
			id, asset_id, from_investor_id, to_investor_id,
			units, execution_date, decision_record_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(t.ID), uuid.UUID(t.AssetID),
		uuid.UUID(t.FromInvestorID), uuid.UUID(t.ToInvestorID),
		t.Units, t.ExecutionDate, uuid.UUID(t.DecisionRecordID), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer tx: %w", err)
	}
	return nil
}

func (s *PostgresHoldingStore) Allocate(ctx context.Context, investorID id.InvestorID, assetID id.AssetID, units, totalUnits int64, record *ledger.DecisionRecord) (*Holding, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin allocation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The asset row serializes concurrent allocations even when no
	// holdings exist yet.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM assets WHERE id = $1 FOR UPDATE`,
		uuid.UUID(assetID),
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock asset: %w", err)
	}

	var allocated int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(units), 0) FROM holdings WHERE asset_id = $1`,
		uuid.UUID(assetID),
	).Scan(&allocated)
	if err != nil {
		return nil, fmt.Errorf("sum allocated units: %w", err)
	}
	if totalUnits-allocated < units {
		return nil, sentinel.ErrInsufficientUnits
	}

	if err := s.ledger.AppendTx(ctx, tx, record); err != nil {
		return nil, err
	}

	var holding Holding
	var hid uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO holdings (id, investor_id, asset_id, units, acquired_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (investor_id, asset_id)
		DO UPDATE SET units = holdings.units + EXCLUDED.units
		RETURNING id, units, acquired_at`,
		uuid.New(), uuid.UUID(investorID), uuid.UUID(assetID), units, record.DecidedAt,
	).Scan(&hid, &holding.Units, &holding.AcquiredAt)
	if err != nil {
		return nil, fmt.Errorf("credit allocated holding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit allocation tx: %w", err)
	}

	holding.ID = id.HoldingID(hid)
	holding.InvestorID = investorID
	holding.AssetID = assetID
	return &holding, nil
}

// PostgresRulesStore reads transfer rule rows over database/sql; rule rows
// are configuration data outside the lock-critical paths.
type PostgresRulesStore struct {
	db *sql.DB
}

func NewPostgresRulesStore(db *sql.DB) *PostgresRulesStore {
	return &PostgresRulesStore{db: db}
}

func (s *PostgresRulesStore) GetActiveRules(ctx context.Context, assetID id.AssetID) (*Rules, error) {
	var (
		rules      Rules
		whitelist  pq.StringArray
		recipients pq.StringArray
		hasRecip   bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, qualification_required, lockup_days,
		       jurisdiction_whitelist,
		       transfer_whitelist IS NOT NULL,
		       COALESCE(transfer_whitelist, '{}'),
		       created_at
		FROM transfer_rules
		WHERE asset_id = $1
		ORDER BY version DESC
		LIMIT 1`,
		assetID.String(),
	).Scan(&rules.Version, &rules.QualificationRequired, &rules.LockupDays,
		&whitelist, &hasRecip, &recipients, &rules.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get transfer rules: %w", err)
	}

	rules.AssetID = assetID
	rules.JurisdictionWhitelist = []string(whitelist)
	if hasRecip {
		rules.TransferWhitelist = make([]id.InvestorID, 0, len(recipients))
		for _, raw := range recipients {
			investorID, err := id.ParseInvestorID(raw)
			if err != nil {
				return nil, fmt.Errorf("transfer whitelist entry: %w", err)
			}
			rules.TransferWhitelist = append(rules.TransferWhitelist, investorID)
		}
	}
	return &rules, nil
}
