// Package telemetry records ledger operations to an append-only journal.
// Emission is best-effort: a journal failure is logged and never blocks the
// operation that produced it.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/artunion/celerychain/internal/storage"
)

// Event kinds recorded by the ledger service.
const (
	KindMint     = "mint"
	KindGive     = "give"
	KindExchange = "exchange"
	KindRename   = "rename"
)

// Emitter writes events to a TelemetryStore. A nil Emitter or a nil store is
// a no-op, so callers never need to guard emission.
type Emitter struct {
	store storage.TelemetryStore
	now   func() time.Time
}

// NewEmitter creates an Emitter backed by store. store may be nil.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, now: time.Now}
}

// Emit records one event, filling in the event ID and timestamp.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) {
	if e == nil || e.store == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.store.AppendTelemetryEvent(ctx, evt); err != nil {
		log.Printf("telemetry append failed for %s event: %v", evt.Kind, err)
	}
}
