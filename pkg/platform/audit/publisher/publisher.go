// Package publisher emits audit events with fail-closed semantics for
// compliance-grade actions. The caller blocks until the event is durably in
// the store (the outbox, when postgres-backed); if the write fails, the
// business operation must fail with it.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "custos/pkg/platform/audit"
)

// Publisher writes audit events through the configured store.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a publisher. For guaranteed delivery the store must be
// outbox-backed.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously persists an audit event. Returns an error if persistence
// fails; compliance-category callers MUST fail their operation when it does.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	return nil
}
