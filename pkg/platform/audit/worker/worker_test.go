package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	outbox "custos/pkg/platform/audit/store/postgres"
)

// fakeOutbox keeps pending entries in order and records what gets marked
// shipped, standing in for the postgres outbox table.
type fakeOutbox struct {
	pending []outbox.Entry
}

func (f *fakeOutbox) FetchUnshipped(_ context.Context, limit int) ([]outbox.Entry, error) {
	if len(f.pending) < limit {
		limit = len(f.pending)
	}
	out := make([]outbox.Entry, limit)
	copy(out, f.pending[:limit])
	return out, nil
}

func (f *fakeOutbox) MarkShipped(_ context.Context, ids []uuid.UUID) error {
	shipped := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		shipped[id] = true
	}
	remaining := f.pending[:0]
	for _, e := range f.pending {
		if !shipped[e.ID] {
			remaining = append(remaining, e)
		}
	}
	f.pending = remaining
	return nil
}

// fakeProducer acks everything except keys listed in failKeys, and remembers
// every successful publish in order.
type fakeProducer struct {
	failKeys  map[string]bool
	published []string
}

func (f *fakeProducer) Produce(_ context.Context, _, key string, _ []byte) error {
	if f.failKeys[key] {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, key)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entriesFor(keys ...string) []outbox.Entry {
	out := make([]outbox.Entry, len(keys))
	for i, k := range keys {
		out[i] = outbox.Entry{
			ID:      uuid.New(),
			Topic:   "custos.audit.compliance",
			Key:     k,
			Payload: []byte(fmt.Sprintf(`{"subject":%q}`, k)),
		}
	}
	return out
}

func TestShipOnceDeliversAndMarks(t *testing.T) {
	store := &fakeOutbox{pending: entriesFor("inv-1", "inv-2", "inv-3")}
	producer := &fakeProducer{}
	w := New(store, producer, discardLogger(), 0)

	if err := w.shipOnce(context.Background()); err != nil {
		t.Fatalf("shipOnce: %v", err)
	}
	if len(producer.published) != 3 {
		t.Fatalf("expected 3 publishes, got %d", len(producer.published))
	}
	if len(store.pending) != 0 {
		t.Fatalf("expected outbox drained, %d rows left", len(store.pending))
	}
}

func TestShipOnceStopsAtFirstFailure(t *testing.T) {
	store := &fakeOutbox{pending: entriesFor("inv-1", "inv-2", "inv-3")}
	producer := &fakeProducer{failKeys: map[string]bool{"inv-2": true}}
	w := New(store, producer, discardLogger(), 0)

	if err := w.shipOnce(context.Background()); err != nil {
		t.Fatalf("shipOnce: %v", err)
	}
	// Only the entry before the failure ships; the failed row and everything
	// after it stay pending so per-subject ordering is preserved on retry.
	if len(producer.published) != 1 || producer.published[0] != "inv-1" {
		t.Fatalf("expected only inv-1 published, got %v", producer.published)
	}
	if len(store.pending) != 2 {
		t.Fatalf("expected 2 rows still pending, got %d", len(store.pending))
	}
	if store.pending[0].Key != "inv-2" {
		t.Fatalf("expected inv-2 at the head of the outbox, got %s", store.pending[0].Key)
	}

	// Broker recovers; the next cycle drains the rest in order.
	producer.failKeys = nil
	if err := w.shipOnce(context.Background()); err != nil {
		t.Fatalf("shipOnce retry: %v", err)
	}
	want := []string{"inv-1", "inv-2", "inv-3"}
	if len(producer.published) != len(want) {
		t.Fatalf("expected %v published, got %v", want, producer.published)
	}
	for i, k := range want {
		if producer.published[i] != k {
			t.Fatalf("expected %v published, got %v", want, producer.published)
		}
	}
	if len(store.pending) != 0 {
		t.Fatalf("expected outbox drained, %d rows left", len(store.pending))
	}
}

func TestShipOnceEmptyOutboxIsNoop(t *testing.T) {
	store := &fakeOutbox{}
	producer := &fakeProducer{}
	w := New(store, producer, discardLogger(), 0)

	if err := w.shipOnce(context.Background()); err != nil {
		t.Fatalf("shipOnce: %v", err)
	}
	if len(producer.published) != 0 {
		t.Fatalf("expected no publishes, got %v", producer.published)
	}
}
