// Package storage defines the persistence boundary for the ledger state.
//
// The state is two named collections — the hash-linked chain and the wallet
// registry — persisted together or not at all, plus an append-only telemetry
// journal. Backends live in subpackages (bbolt, sqlite).
package storage

import (
	"context"
	"time"

	"github.com/artunion/celerychain/internal/ledger/chain"
	"github.com/artunion/celerychain/internal/ledger/wallet"
	apperrors "github.com/artunion/celerychain/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing. A fresh
// deployment returns this from Load until the first Save seeds genesis state.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Snapshot is the full persisted ledger state.
type Snapshot struct {
	Chain   []chain.Entry            `json:"chain"`
	Wallets map[string]wallet.Wallet `json:"wallets"`
}

// Store persists ledger snapshots atomically.
type Store interface {
	// Load fetches the current snapshot, or ErrNotFound when none was saved.
	Load(ctx context.Context) (Snapshot, error)
	// Save persists both collections in a single transaction.
	Save(ctx context.Context, snap Snapshot) error
	// Close releases the underlying database.
	Close() error
}

// TelemetryEvent records one ledger operation for the operational journal.
type TelemetryEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	CeleryID  int       `json:"celeryId"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryStore appends operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
