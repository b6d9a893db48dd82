package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "custos/pkg/platform/audit"
)

// Store implements audit.Store using the transactional outbox pattern. Events
// are written to the outbox table and shipped to Kafka by the outbox worker;
// the broker is the long-term source of truth for audit events.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Entry is one unshipped outbox row.
type Entry struct {
	ID      uuid.UUID
	Topic   string
	Key     string
	Payload []byte
}

// payload is the JSON structure published to the broker.
type payload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	Subject    string `json:"subject"`
	Action     string `json:"action"`
	AssetID    string `json:"asset_id,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.Action(event.Action).Category()

	body, err := json.Marshal(payload{
		ID:         eventID.String(),
		Category:   string(category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Subject:    event.Subject,
		Action:     event.Action,
		AssetID:    event.AssetID,
		DecisionID: event.DecisionID,
		Decision:   event.Decision,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
		ActorID:    event.ActorID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, category, subject, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(category),
		event.Subject,
		event.Action,
		body,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnshipped returns up to limit unshipped outbox rows, oldest first.
// Topic routing is by category so compliance events can carry a longer broker
// retention than operations events.
func (s *Store) FetchUnshipped(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, subject, payload
		FROM audit_outbox
		WHERE shipped_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var category string
		if err := rows.Scan(&e.ID, &category, &e.Key, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Topic = TopicForCategory(audit.EventCategory(category))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkShipped stamps outbox rows as delivered.
func (s *Store) MarkShipped(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_outbox SET shipped_at = $1 WHERE id = ANY($2::uuid[])
	`, time.Now(), pq.Array(idsParam(ids)))
	if err != nil {
		return fmt.Errorf("mark outbox shipped: %w", err)
	}
	return nil
}

func idsParam(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// TopicForCategory maps an event category to its broker topic.
func TopicForCategory(cat audit.EventCategory) string {
	if cat == audit.CategoryCompliance {
		return "custos.audit.compliance"
	}
	return "custos.audit.operations"
}
