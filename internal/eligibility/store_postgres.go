package eligibility

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	id "custos/pkg/domain"
)

// PostgresStore reads eligibility criteria from the eligibility_criteria
// table. Rows are written by fund configuration; this store is read-only.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListApplicable(ctx context.Context, fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string, at time.Time) ([]*Criterion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fund_structure_id, jurisdiction, investor_type,
		       minimum_investment, suitability_required, source_reference,
		       effective_date, superseded_at
		FROM eligibility_criteria
		WHERE fund_structure_id = $1
		  AND investor_type = $2
		  AND jurisdiction IN ($3, '*')
		  AND effective_date <= $4
		  AND (superseded_at IS NULL OR superseded_at > $4)
		ORDER BY effective_date`,
		fundID.String(), string(investorType), jurisdiction, at,
	)
	if err != nil {
		return nil, fmt.Errorf("query eligibility criteria: %w", err)
	}
	defer rows.Close()

	var matched []*Criterion
	for rows.Next() {
		var (
			row          Criterion
			rawID        string
			rawFund      string
			rawType      string
			supersededAt sql.NullTime
		)
		if err := rows.Scan(&rawID, &rawFund, &row.Jurisdiction, &rawType,
			&row.MinimumInvestment, &row.SuitabilityRequired, &row.SourceReference,
			&row.EffectiveDate, &supersededAt); err != nil {
			return nil, fmt.Errorf("scan eligibility criterion: %w", err)
		}
		if row.ID, err = id.ParseCriterionID(rawID); err != nil {
			return nil, fmt.Errorf("criterion id: %w", err)
		}
		if row.FundStructureID, err = id.ParseFundStructureID(rawFund); err != nil {
			return nil, fmt.Errorf("criterion fund id: %w", err)
		}
		if row.InvestorType, err = id.ParseInvestorType(rawType); err != nil {
			return nil, fmt.Errorf("criterion investor type: %w", err)
		}
		if supersededAt.Valid {
			t := supersededAt.Time
			row.SupersededAt = &t
		}
		matched = append(matched, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligibility criteria: %w", err)
	}
	return matched, nil
}
