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

// DefaultJobRetention bounds how long a terminal job record survives so a
// late subscriber can still replay its terminal event after a hub restart.
const DefaultJobRetention = 48 * time.Hour

var jobKeyPrefix = []byte("job:")

func jobDBKey(jobID string) []byte {
	return append(append([]byte{}, jobKeyPrefix...), []byte(jobID)...)
}

// JobStore persists Job records, independent of the idempotency and
// degradation stores. A Job is exclusively owned by the worker processing
// it; JobStore itself enforces no ownership, it only persists snapshots.
type JobStore struct {
	db        *badger.DB
	retention time.Duration
}

// NewJobStore constructs a JobStore over the shared BadgerDB instance.
func NewJobStore(db *badger.DB) *JobStore {
	return &JobStore{db: db, retention: DefaultJobRetention}
}

// Save upserts the current snapshot of job.
func (s *JobStore) Save(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(jobDBKey(job.JobID), payload).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
}

// Load returns the current snapshot for jobID, or nil if not found.
func (s *JobStore) Load(ctx context.Context, jobID string) (*Job, error) {
	var job *Job
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(jobDBKey(jobID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var j Job
			if err := json.Unmarshal(val, &j); err != nil {
				return err
			}
			job = &j
			return nil
		})
	})
	return job, err
}
