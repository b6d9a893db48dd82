package ledger

import (
	"context"
	"time"

	id "custos/pkg/domain"
)

// Store persists decision records. Append assigns the sequence number and
// chain hashes; assignment must be globally serialized so sequence numbers
// come out gapless and strictly increasing even under concurrent decisions.
//
// There is deliberately no update or delete surface.
type Store interface {
	Append(ctx context.Context, record *DecisionRecord) error
	GetByID(ctx context.Context, decisionID id.DecisionID) (*DecisionRecord, error)
	// ListByAsset returns records for an asset within [from, to], sequence
	// ascending. Zero times mean unbounded.
	ListByAsset(ctx context.Context, assetID id.AssetID, from, to time.Time) ([]*DecisionRecord, error)
	// ListRecent returns the newest records, sequence descending.
	ListRecent(ctx context.Context, limit int) ([]*DecisionRecord, error)
	// ListBySequence returns up to limit records with sequence number
	// greater than afterSeq, ascending. Chain verification walks with it.
	ListBySequence(ctx context.Context, afterSeq int64, limit int) ([]*DecisionRecord, error)
}
