package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// Postgres reads reference data maintained by the administration system.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) GetInvestor(ctx context.Context, investorID id.InvestorID) (*Investor, error) {
	var inv Investor
	var invID uuid.UUID
	var invType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, jurisdiction, investor_type, accredited, suitability_assessed, kyc_expiry
		FROM investors WHERE id = $1
	`, uuid.UUID(investorID)).Scan(
		&invID, &inv.Name, &inv.Jurisdiction, &invType,
		&inv.Accredited, &inv.SuitabilityAssessed, &inv.KYCExpiry,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get investor: %w", err)
	}
	inv.ID = id.InvestorID(invID)
	inv.Type = id.InvestorType(invType)
	return &inv, nil
}

func (s *Postgres) GetFundStructure(ctx context.Context, fundID id.FundStructureID) (*FundStructure, error) {
	var fund FundStructure
	var fID uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, legal_form, jurisdiction
		FROM fund_structures WHERE id = $1
	`, uuid.UUID(fundID)).Scan(&fID, &fund.Name, &fund.LegalForm, &fund.Jurisdiction)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get fund structure: %w", err)
	}
	fund.ID = id.FundStructureID(fID)
	return &fund, nil
}

func (s *Postgres) GetAsset(ctx context.Context, assetID id.AssetID) (*Asset, error) {
	var asset Asset
	var aID uuid.UUID
	var fundID *uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id, fund_structure_id, name, total_units, unit_price
		FROM assets WHERE id = $1
	`, uuid.UUID(assetID)).Scan(&aID, &fundID, &asset.Name, &asset.TotalUnits, &asset.UnitPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	asset.ID = id.AssetID(aID)
	if fundID != nil {
		f := id.FundStructureID(*fundID)
		asset.FundStructureID = &f
	}
	return &asset, nil
}
