package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// PostgresStore persists onboarding applications in the onboardings table.
// Update's WHERE clause on the expected status is the compare-and-set that
// keeps concurrent transitions from both succeeding.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const onboardingColumns = `id, investor_id, asset_id, requested_units, status,
	eligibility_decision_id, approval_decision_id, reviewed_by,
	rejection_reasons, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO onboardings (`+onboardingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID.String(), rec.InvestorID.String(), rec.AssetID.String(),
		rec.RequestedUnits, string(rec.Status),
		decisionIDOrNil(rec.EligibilityDecisionID), decisionIDOrNil(rec.ApprovalDecisionID),
		nullString(rec.ReviewedBy), pq.Array(rec.RejectionReasons),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert onboarding: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, onboardingID id.OnboardingID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+onboardingColumns+`
		FROM onboardings
		WHERE id = $1`, onboardingID.String(),
	)
	return scanOnboarding(row)
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record, expected Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE onboardings
		SET status = $2,
		    eligibility_decision_id = $3,
		    approval_decision_id = $4,
		    reviewed_by = $5,
		    rejection_reasons = $6,
		    updated_at = $7
		WHERE id = $1 AND status = $8`,
		rec.ID.String(), string(rec.Status),
		decisionIDOrNil(rec.EligibilityDecisionID), decisionIDOrNil(rec.ApprovalDecisionID),
		nullString(rec.ReviewedBy), pq.Array(rec.RejectionReasons),
		rec.UpdatedAt, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update onboarding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update onboarding: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or a concurrent transition won the race.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM onboardings WHERE id = $1)`,
			rec.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("update onboarding: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+onboardingColumns+`
		FROM onboardings
		WHERE asset_id = $1
		ORDER BY created_at`, assetID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query onboardings: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanOnboarding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate onboardings: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOnboarding(row rowScanner) (*Record, error) {
	var (
		rec         Record
		rawID       string
		rawInvestor string
		rawAsset    string
		rawStatus   string
		rawEligID   sql.NullString
		rawApprID   sql.NullString
		reviewedBy  sql.NullString
		reasons     pq.StringArray
	)
	err := row.Scan(&rawID, &rawInvestor, &rawAsset, &rec.RequestedUnits, &rawStatus,
		&rawEligID, &rawApprID, &reviewedBy, &reasons, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan onboarding: %w", err)
	}
	if rec.ID, err = id.ParseOnboardingID(rawID); err != nil {
		return nil, fmt.Errorf("onboarding id: %w", err)
	}
	if rec.InvestorID, err = id.ParseInvestorID(rawInvestor); err != nil {
		return nil, fmt.Errorf("onboarding investor id: %w", err)
	}
	if rec.AssetID, err = id.ParseAssetID(rawAsset); err != nil {
		return nil, fmt.Errorf("onboarding asset id: %w", err)
	}
	rec.Status = Status(rawStatus)
	if rawEligID.Valid {
		v, err := id.ParseDecisionID(rawEligID.String)
		if err != nil {
			return nil, fmt.Errorf("eligibility decision id: %w", err)
		}
		rec.EligibilityDecisionID = &v
	}
	if rawApprID.Valid {
		v, err := id.ParseDecisionID(rawApprID.String)
		if err != nil {
			return nil, fmt.Errorf("approval decision id: %w", err)
		}
		rec.ApprovalDecisionID = &v
	}
	rec.ReviewedBy = reviewedBy.String
	rec.RejectionReasons = []string(reasons)
	return &rec, nil
}

func decisionIDOrNil(decisionID *id.DecisionID) any {
	if decisionID == nil {
		return nil
	}
	return decisionID.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
