package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/artunion/celerychain/internal/ledger/chain"
	"github.com/artunion/celerychain/internal/ledger/wallet"
	"github.com/artunion/celerychain/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("expected store to open, got %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("expected clean close, got %v", err)
		}
	})
	return store
}

// TestOpenRequiresPath verifies blank paths are rejected.
func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

// TestLoadMissingSnapshot verifies an empty database reports not found.
func TestLoadMissingSnapshot(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.Load(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSaveLoadRoundTrip verifies a snapshot survives persistence.
func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	snap := storage.Snapshot{
		Chain: []chain.Entry{chain.Genesis("root")},
		Wallets: map[string]wallet.Wallet{
			"root":   {ID: "root", OwnedCeleries: []int{0}},
			"user-1": {ID: "user-1", OwnedCeleries: []int{1}},
		},
	}

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if len(loaded.Chain) != 1 || loaded.Chain[0].Block.Name != chain.GenesisName {
		t.Fatalf("expected genesis chain, got %+v", loaded.Chain)
	}
	if !loaded.Wallets["user-1"].Owns(1) {
		t.Fatalf("expected user-1 to own celery 1, got %+v", loaded.Wallets["user-1"])
	}
}

// TestSaveOverwritesSnapshot verifies the latest save wins.
func TestSaveOverwritesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := storage.Snapshot{
		Chain:   []chain.Entry{chain.Genesis("root")},
		Wallets: map[string]wallet.Wallet{"root": {ID: "root", OwnedCeleries: []int{0}}},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("expected first save to succeed, got %v", err)
	}

	second := first
	second.Wallets = map[string]wallet.Wallet{
		"root":   {ID: "root"},
		"user-2": {ID: "user-2", OwnedCeleries: []int{0}},
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("expected second save to succeed, got %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if loaded.Wallets["root"].Owns(0) {
		t.Fatal("expected root to no longer own celery 0")
	}
	if !loaded.Wallets["user-2"].Owns(0) {
		t.Fatal("expected user-2 to own celery 0")
	}
}

// TestAppendTelemetryEvent verifies events land in the journal.
func TestAppendTelemetryEvent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	evt := storage.TelemetryEvent{
		ID:        "evt-1",
		Kind:      "mint",
		Actor:     "user-1",
		CeleryID:  1,
		Detail:    "rarity=3",
		Timestamp: time.Now().UTC(),
	}
	if err := store.AppendTelemetryEvent(ctx, evt); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events`).Scan(&count); err != nil {
		t.Fatalf("expected count query to succeed, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 telemetry event, got %d", count)
	}
}

// TestCancelledContext verifies operations observe context cancellation.
func TestCancelledContext(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from load, got %v", err)
	}
	if err := store.Save(ctx, storage.Snapshot{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from save, got %v", err)
	}
}
