package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custos/internal/ledger/metrics"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	audit "custos/pkg/platform/audit"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// AuditEmitter is the side-channel event sink.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the write and read surface of the decision ledger. Evaluators
// call Record; everything else is read-only.
type Service struct {
	store   Store
	auditor AuditEmitter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, auditor AuditEmitter, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	return &Service{store: store, auditor: auditor, logger: logger, metrics: m}, nil
}

// systemActor is recorded when no authenticated principal is in context
// (workers, migrations).
const systemActor = "system"

// Prepare assembles an unsealed record from a draft: identity, actor, and
// decision time are assigned here; sequence and chain hashes are assigned by
// the store on append. Callers that append atomically alongside their own
// mutation use Prepare + Finalize around their store's transactional append.
func (s *Service) Prepare(ctx context.Context, draft Draft) (*DecisionRecord, error) {
	if !draft.DecisionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown decision type")
	}
	if !draft.Result.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown decision result")
	}

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = systemActor
	}

	return &DecisionRecord{
		ID:            id.NewDecisionID(),
		DecisionType:  draft.DecisionType,
		AssetID:       draft.AssetID,
		SubjectID:     draft.SubjectID,
		InputSnapshot: draft.InputSnapshot,
		RuleVersions:  draft.RuleVersions,
		Result:        draft.Result,
		ResultDetails: draft.ResultDetails,
		DecidedBy:     actor,
		DecidedAt:     requestcontext.Now(ctx),
	}, nil
}

// Record appends a decision. The record's identity, actor, time, sequence,
// and chain hashes are assigned here; the draft's snapshots are stored
// byte-for-byte as given.
func (s *Service) Record(ctx context.Context, draft Draft) (*DecisionRecord, error) {
	record, err := s.Prepare(ctx, draft)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := s.store.Append(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append decision record")
	}
	s.metrics.ObserveAppend(time.Since(start).Seconds())

	s.Finalize(ctx, record)
	return record, nil
}

// Finalize runs the post-append bookkeeping for a record that is already
// durably in the ledger: metrics and the operations audit event.
func (s *Service) Finalize(ctx context.Context, record *DecisionRecord) {
	s.metrics.IncRecord(string(record.DecisionType), string(record.Result))

	if s.auditor != nil {
		event := audit.Event{
			Subject:    record.SubjectID,
			Action:     string(audit.ActionDecisionRecorded),
			DecisionID: record.ID.String(),
			Decision:   string(record.Result),
			RequestID:  requestcontext.RequestID(ctx),
			ActorID:    record.DecidedBy,
		}
		if record.AssetID != nil {
			event.AssetID = record.AssetID.String()
		}
		// Operations-category event; a sink failure must not undo a
		// decision that is already durably in the ledger.
		if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "decision audit emit failed",
				"decision_id", record.ID,
				"error", err,
			)
		}
	}
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, decisionID id.DecisionID) (*DecisionRecord, error) {
	record, err := s.store.GetByID(ctx, decisionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decision record")
	}
	return record, nil
}

// ListByAsset returns an asset's records within the range, sequence ascending.
func (s *Service) ListByAsset(ctx context.Context, assetID id.AssetID, from, to time.Time) ([]*DecisionRecord, error) {
	records, err := s.store.ListByAsset(ctx, assetID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list decision records")
	}
	return records, nil
}

// Recent returns the newest records, sequence descending.
func (s *Service) Recent(ctx context.Context, limit int) ([]*DecisionRecord, error) {
	records, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recent decisions")
	}
	return records, nil
}

// verifyBatch is the page size for chain walks.
const verifyBatch = 500

// VerifyChain walks the whole ledger and returns the sequence number of the
// first record whose chain linkage is broken, or 0 when the chain is intact.
func (s *Service) VerifyChain(ctx context.Context) (int64, error) {
	prevHash := ""
	prevSeq := int64(0)
	for {
		records, err := s.store.ListBySequence(ctx, prevSeq, verifyBatch)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to walk ledger")
		}
		if len(records) == 0 {
			return 0, nil
		}
		for _, r := range records {
			if r.SequenceNumber != prevSeq+1 {
				return r.SequenceNumber, nil
			}
			wantPrev := prevHash
			if wantPrev == "" {
				wantPrev = genesisHash
			}
			if r.PrevHash != wantPrev || r.RecordHash != computeHash(r.PrevHash, r) {
				return r.SequenceNumber, nil
			}
			prevHash = r.RecordHash
			prevSeq = r.SequenceNumber
		}
	}
}
