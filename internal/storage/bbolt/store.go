// Package bbolt provides a BoltDB-backed ledger store.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/artunion/celerychain/internal/storage"
)

const (
	ledgerBucket    = "ledger"
	telemetryBucket = "telemetry"

	chainKey   = "chain"
	walletsKey = "wallets"
)

// Store provides a BoltDB-backed ledger store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load fetches the persisted snapshot. It fails with storage.ErrNotFound
// when no snapshot has been saved yet.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.db == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}

	var snap storage.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		if bucket == nil {
			return fmt.Errorf("ledger bucket is missing")
		}
		chainPayload := bucket.Get([]byte(chainKey))
		walletsPayload := bucket.Get([]byte(walletsKey))
		if chainPayload == nil || walletsPayload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(chainPayload, &snap.Chain); err != nil {
			return fmt.Errorf("unmarshal chain: %w", err)
		}
		if err := json.Unmarshal(walletsPayload, &snap.Wallets); err != nil {
			return fmt.Errorf("unmarshal wallets: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.Snapshot{}, err
	}
	return snap, nil
}

// Save persists both collections inside a single update transaction.
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

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		if bucket == nil {
			return fmt.Errorf("ledger bucket is missing")
		}
		if err := bucket.Put([]byte(chainKey), chainPayload); err != nil {
			return err
		}
		return bucket.Put([]byte(walletsKey), walletsPayload)
	})
}

// AppendTelemetryEvent appends an event to the telemetry journal under a
// monotonically increasing sequence key.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(telemetryBucket))
		if bucket == nil {
			return fmt.Errorf("telemetry bucket is missing")
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next telemetry sequence: %w", err)
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], payload)
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{ledgerBucket, telemetryBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
