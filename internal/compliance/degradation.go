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

// DefaultDegradationTTL is the default retention of the fallback cache.
const DefaultDegradationTTL = 7 * 24 * time.Hour

var degradationKeyPrefix = []byte("degrade:")

// DegradationStore persists successful analyses keyed by
// (policy_type, content_hash), with a longer TTL than the idempotency
// store. It is consulted only as a last-resort fallback when the primary
// pipeline cannot produce a fresh result.
type DegradationStore struct {
	db *badger.DB
}

// NewDegradationStore constructs a DegradationStore over the shared
// BadgerDB instance.
func NewDegradationStore(db *badger.DB) *DegradationStore {
	return &DegradationStore{db: db}
}

func degradationDBKey(policyType, contentHash string) []byte {
	return append(append(append([]byte{}, degradationKeyPrefix...), []byte(policyType+":")...), []byte(contentHash)...)
}

// Store upserts a fallback result for (policyType, contentHash) with ttl.
func (s *DegradationStore) Store(ctx context.Context, policyType, contentHash string, result *AnalysisResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal degradation value: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(degradationDBKey(policyType, contentHash), payload).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Find looks up a fallback result by strict equality on both fields,
// returning nil if there is no non-expired match.
func (s *DegradationStore) Find(ctx context.Context, policyType, contentHash string) (*AnalysisResult, error) {
	var result *AnalysisResult
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(degradationDBKey(policyType, contentHash))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var v AnalysisResult
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("unmarshal degradation value: %w", err)
			}
			result = &v
			return nil
		})
	})
	return result, err
}

// Clear removes every degradation record for a given policy type.
func (s *DegradationStore) Clear(ctx context.Context, policyType string) error {
	prefix := append(append([]byte{}, degradationKeyPrefix...), []byte(policyType+":")...)
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
