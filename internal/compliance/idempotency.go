// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/shopcompliance/engine/internal/storage/badger"
)

// DefaultIdempotencyTTL is the default retention of completed results.
const DefaultIdempotencyTTL = 24 * time.Hour

var idempotencyKeyPrefix = []byte("idemp:")

// IdempotencyStore persists completed job results keyed by idempotency key,
// with TTL. Writes are upserts; concurrent stores to the same key keep the
// last writer's value, and readers never observe a partially written value
// because BadgerDB transactions are atomic.
type IdempotencyStore struct {
	db *badger.DB
}

// NewIdempotencyStore constructs an IdempotencyStore over the shared
// BadgerDB instance.
func NewIdempotencyStore(db *badger.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func idempotencyDBKey(key string) []byte {
	return append(append([]byte{}, idempotencyKeyPrefix...), []byte(key)...)
}

// Store upserts a result under key with the given TTL.
func (s *IdempotencyStore) Store(ctx context.Context, key string, value *AnalysisResult, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal idempotency value: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(idempotencyDBKey(key), payload).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Get returns the stored result for key, or nil if absent or expired.
// BadgerDB enforces expiry internally; an expired record is indistinguishable
// from a missing one.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*AnalysisResult, error) {
	var result *AnalysisResult
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(idempotencyDBKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var v AnalysisResult
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("unmarshal idempotency value: %w", err)
			}
			result = &v
			return nil
		})
	})
	return result, err
}

// Has reports whether a non-expired record exists for key.
func (s *IdempotencyStore) Has(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		_, err := txn.Get(idempotencyDBKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Delete removes a record for key, if present.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		err := txn.Delete(idempotencyDBKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// IdempotencyStats summarizes the store's current size.
type IdempotencyStats struct {
	Count int `json:"count"`
}

// Stats scans the collection and reports a live count. Intended for
// observability, not hot-path use.
func (s *IdempotencyStore) Stats(ctx context.Context) (IdempotencyStats, error) {
	var stats IdempotencyStats
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = idempotencyKeyPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Count++
		}
		return nil
	})
	return stats, err
}
