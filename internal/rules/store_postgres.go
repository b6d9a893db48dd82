package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// PostgresStore persists composite rules with conditions as JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `id, asset_id, name, description, operator, conditions, enabled, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rule *CompositeRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal rule conditions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO composite_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID.String(), rule.AssetID.String(), rule.Name, rule.Description,
		string(rule.Operator), conditions, rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert composite rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, ruleID id.RuleID) (*CompositeRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM composite_rules
		WHERE id = $1`,
		ruleID.String(),
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *PostgresStore) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*CompositeRule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+`
		FROM composite_rules
		WHERE asset_id = $1
		ORDER BY created_at`,
		assetID.String(),
	)
}

func (s *PostgresStore) ListEnabledByAsset(ctx context.Context, assetID id.AssetID) ([]*CompositeRule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+`
		FROM composite_rules
		WHERE asset_id = $1 AND enabled
		ORDER BY created_at`,
		assetID.String(),
	)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*CompositeRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query composite rules: %w", err)
	}
	defer rows.Close()

	var matched []*CompositeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		matched = append(matched, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate composite rules: %w", err)
	}
	return matched, nil
}

func (s *PostgresStore) SetEnabled(ctx context.Context, ruleID id.RuleID, enabled bool) (*CompositeRule, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE composite_rules
		SET enabled = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+ruleColumns,
		ruleID.String(), enabled, requestcontext.Now(ctx),
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ruleID id.RuleID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM composite_rules WHERE id = $1`, ruleID.String())
	if err != nil {
		return fmt.Errorf("delete composite rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete composite rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*CompositeRule, error) {
	var (
		rule       CompositeRule
		rawID      string
		rawAsset   string
		rawOp      string
		conditions []byte
	)
	err := row.Scan(&rawID, &rawAsset, &rule.Name, &rule.Description,
		&rawOp, &conditions, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan composite rule: %w", err)
	}
	if rule.ID, err = id.ParseRuleID(rawID); err != nil {
		return nil, fmt.Errorf("rule id: %w", err)
	}
	if rule.AssetID, err = id.ParseAssetID(rawAsset); err != nil {
		return nil, fmt.Errorf("rule asset id: %w", err)
	}
	rule.Operator = Operator(rawOp)
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
	}
	return &rule, nil
}
