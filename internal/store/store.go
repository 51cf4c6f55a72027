// Package store implements the PositionStore: durable position CRUD, the
// append-only audit log, and in-place quantity/side corrections, backed by
// BoltDB. Grounded on the teacher's internal/storage/storage.go — the same
// bbolt.Open/db.Update/db.View bucket idiom, JSON-marshaled records, and
// cursor range-scan helper — retargeted from trades/depth snapshots onto
// positions and audit entries. BoltDB's single-writer-transaction model also
// supplies the per-position row lock position.Store.WithLock needs: two
// concurrent WithLock calls on different IDs still serialize through one
// db.Update, which is the same tradeoff spec.md §9 calls out as acceptable
// for small deployments.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bitunix-bot/coretrader/internal/position"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const (
	positionsBucket = "positions"
	auditBucket     = "audit_log"
)

// Store is the BoltDB-backed PositionStore, also implementing
// position.AuditLog and reconcile.Corrector so the whole persistence layer
// is one object wired into position.Engine and internal/reconcile.Reconciler.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a BoltDB database at dataPath and
// ensures its buckets exist.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "coretrader.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(positionsBucket)); err != nil {
			return fmt.Errorf("create positions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(auditBucket)); err != nil {
			return fmt.Errorf("create audit bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert persists a new position record, keyed by its UUID.
func (s *Store) Insert(ctx context.Context, p position.Position) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putPosition(tx, p)
	})
}

// Update overwrites an existing position record.
func (s *Store) Update(ctx context.Context, p position.Position) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putPosition(tx, p)
	})
}

// Get retrieves a position by ID. The second return value is false if no
// record exists, matching position.Store's not-found-via-bool contract.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (position.Position, bool, error) {
	var p position.Position
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		data := b.Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	return p, found, err
}

// ListOpen returns every open position, optionally filtered to one symbol.
func (s *Store) ListOpen(ctx context.Context, symbol string) ([]position.Position, error) {
	var out []position.Position
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		return b.ForEach(func(k, v []byte) error {
			var p position.Position
			if err := json.Unmarshal(v, &p); err != nil {
				return nil // skip malformed records rather than abort the scan
			}
			if p.Status != position.StatusOpen {
				return nil
			}
			if symbol != "" && p.Symbol != symbol {
				return nil
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// ListClosedOn returns every position closed on the given UTC calendar day.
func (s *Store) ListClosedOn(ctx context.Context, day time.Time) ([]position.Position, error) {
	day = day.UTC()
	var out []position.Position
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		return b.ForEach(func(k, v []byte) error {
			var p position.Position
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if p.Status == position.StatusOpen || p.ClosedAt.IsZero() {
				return nil
			}
			if sameUTCDay(p.ClosedAt, day) {
				out = append(out, p)
			}
			return nil
		})
	})
	return out, err
}

// WithLock reads the position at id, passes it to fn, and persists fn's
// returned value, all within one BoltDB write transaction so no other
// mutation of any position can interleave. This is the "SELECT ... FOR
// UPDATE equivalent" spec.md §4.2 calls for.
func (s *Store) WithLock(ctx context.Context, id uuid.UUID, fn func(position.Position) (position.Position, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		var p position.Position
		if data := b.Get(idKey(id)); data != nil {
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("unmarshal position %s: %w", id, err)
			}
		} else {
			p = position.Position{ID: id}
		}

		updated, err := fn(p)
		if err != nil {
			return err
		}
		return putPositionTx(b, updated)
	})
}

// Correct overwrites a position's side and quantity in place, implementing
// reconcile.Corrector. Idempotent: applying the same correction twice leaves
// the stored record unchanged the second time.
func (s *Store) Correct(ctx context.Context, id uuid.UUID, side position.Side, quantity decimal.Decimal) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		data := b.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("correct position %s: not found", id)
		}
		var p position.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal position %s: %w", id, err)
		}
		p.Side = side
		p.Quantity = quantity
		return putPositionTx(b, p)
	})
}

// Append persists an audit entry, implementing position.AuditLog. Keys are
// "<position-id>_<timestamp-nanos>" so AuditForPosition can cursor-scan a
// single position's history instead of reading the whole bucket, the same
// prefix-scan idiom the teacher uses for its symbol_timestamp trade keys.
func (s *Store) Append(ctx context.Context, entry position.AuditEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		return b.Put(auditKey(entry.PositionID, entry.Timestamp), data)
	})
}

// AuditForPosition returns every audit entry recorded for a position, in
// chronological order, for post-mortem inspection.
func (s *Store) AuditForPosition(ctx context.Context, id uuid.UUID) ([]position.AuditEntry, error) {
	var out []position.AuditEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		c := b.Cursor()
		prefix := []byte(id.String() + "_")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var e position.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue // skip malformed records rather than abort the scan
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func auditKey(positionID uuid.UUID, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%d", positionID, ts.UnixNano()))
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}

func putPosition(tx *bbolt.Tx, p position.Position) error {
	b := tx.Bucket([]byte(positionsBucket))
	return putPositionTx(b, p)
}

func putPositionTx(b *bbolt.Bucket, p position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return b.Put(idKey(p.ID), data)
}

func idKey(id uuid.UUID) []byte {
	return []byte(id.String())
}

func sameUTCDay(t, day time.Time) bool {
	t = t.UTC()
	return t.Year() == day.Year() && t.Month() == day.Month() && t.Day() == day.Day()
}
