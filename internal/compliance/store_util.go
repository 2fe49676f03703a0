// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/shopcompliance/engine/internal/storage/badger"
)

// countPrefix scans db for keys under prefix and returns a live count.
// Intended for observability sampling, not hot-path use.
func countPrefix(ctx context.Context, db *badger.DB, prefix []byte) (int, error) {
	count := 0
	err := db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
