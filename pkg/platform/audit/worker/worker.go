// Package worker relays unshipped audit outbox rows to the broker. Delivery
// is at-least-once: rows are only marked shipped after the broker acks, and
// consumers must tolerate replays.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	outbox "custos/pkg/platform/audit/store/postgres"
)

// Producer publishes one record to the broker and blocks until acked.
type Producer interface {
	Produce(ctx context.Context, topic, key string, payload []byte) error
}

// Outbox exposes the pending rows of the audit outbox.
type Outbox interface {
	FetchUnshipped(ctx context.Context, limit int) ([]outbox.Entry, error)
	MarkShipped(ctx context.Context, ids []uuid.UUID) error
}

// Worker polls the outbox and ships pending entries.
type Worker struct {
	store    Outbox
	producer Producer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func New(store Outbox, producer Producer, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		store:    store,
		producer: producer,
		logger:   logger,
		interval: interval,
		batch:    100,
	}
}

// Run polls until ctx is cancelled. Ship failures are logged and retried on
// the next tick; the outbox keeps the rows until they are acked.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.shipOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox ship failed", "error", err)
			}
		}
	}
}

func (w *Worker) shipOnce(ctx context.Context) error {
	entries, err := w.store.FetchUnshipped(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	shipped := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if err := w.producer.Produce(ctx, e.Topic, e.Key, e.Payload); err != nil {
			// Stop at the first failure to preserve per-subject ordering.
			w.logger.WarnContext(ctx, "broker publish failed",
				"outbox_id", e.ID,
				"topic", e.Topic,
				"error", err,
			)
			break
		}
		shipped = append(shipped, e.ID)
	}
	return w.store.MarkShipped(ctx, shipped)
}
