// Package sqlite provides a SQLite-backed ledger store.
//
// The schema mirrors the key-value shape of the bbolt backend: one row per
// named collection plus an append-only telemetry table, so both backends are
// interchangeable behind storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/artunion/celerychain/internal/storage"
)

const (
	chainCollection   = "chain"
	walletsCollection = "wallets"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS telemetry_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL,
	celery_id INTEGER NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at_ms INTEGER NOT NULL
);
`

// Store provides a SQLite-backed ledger store.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite store at the provided path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	// The ledger has a single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load fetches the persisted snapshot. It fails with storage.ErrNotFound
// when either collection has not been saved yet.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.db == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}

	var snap storage.Snapshot
	chainPayload, err := s.collection(ctx, chainCollection)
	if err != nil {
		return storage.Snapshot{}, err
	}
	walletsPayload, err := s.collection(ctx, walletsCollection)
	if err != nil {
		return storage.Snapshot{}, err
	}
	if err := json.Unmarshal(chainPayload, &snap.Chain); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal chain: %w", err)
	}
	if err := json.Unmarshal(walletsPayload, &snap.Wallets); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal wallets: %w", err)
	}
	return snap, nil
}

// Save persists both collections inside a single transaction.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	chainPayload, err := json.Marshal(snap.Chain)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	walletsPayload, err := json.Marshal(snap.Wallets)
	if err != nil {
		return fmt.Errorf("marshal wallets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `INSERT INTO collections (name, payload) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, upsert, chainCollection, chainPayload); err != nil {
		return fmt.Errorf("save chain: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, walletsCollection, walletsPayload); err != nil {
		return fmt.Errorf("save wallets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save transaction: %w", err)
	}
	return nil
}

// AppendTelemetryEvent appends an event to the telemetry journal.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	const insert = `INSERT INTO telemetry_events (id, kind, actor, celery_id, detail, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, evt.ID, evt.Kind, evt.Actor, evt.CeleryID, evt.Detail, ts.UnixMilli()); err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

func (s *Store) collection(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	return payload, nil
}
