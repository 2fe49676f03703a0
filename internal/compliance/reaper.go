// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopcompliance/engine/internal/storage/badger"
)

// DefaultReaperInterval is how often the reaper reports store size.
const DefaultReaperInterval = 10 * time.Minute

// Reaper periodically reports the size of the persisted collections for
// operational visibility. BadgerDB expires idempotency, degradation, and
// quota records natively via per-entry TTLs, so the reaper does not delete
// anything itself; it only samples counts, the same ticker+done idiom the
// teacher's TTL scheduler used for its own periodic sweep.
type Reaper struct {
	db       *badger.DB
	interval time.Duration
	logger   *slog.Logger
	clock    ClockChecker

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewReaper constructs a Reaper. interval defaults to DefaultReaperInterval
// if zero or negative.
func NewReaper(db *badger.DB, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{db: db, interval: interval, logger: logger, clock: NewClockChecker(DefaultClockConfig())}
}

// ReaperSnapshot summarizes the persisted collections at a point in time.
type ReaperSnapshot struct {
	IdempotencyCount int
	DegradationCount int
	JobCount         int
	SampledAt        time.Time
}

// Start begins the background reporting loop. Safe to call once; a second
// call while already running is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)
}

// Stop halts the reporting loop. Safe to call multiple times.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.done)
	r.running = false
}

func (r *Reaper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.clock.CheckSanity(); err != nil {
				r.logger.Warn("reaper skipping sample, clock looks wrong", "error", err)
				continue
			}
			snap, err := r.Sample(ctx)
			if err != nil {
				r.logger.Warn("reaper sample failed", "error", err)
				continue
			}
			r.logger.Info("store size sample",
				"idempotency_count", snap.IdempotencyCount,
				"degradation_count", snap.DegradationCount,
				"job_count", snap.JobCount,
			)
		}
	}
}

// Sample takes an immediate reading of the persisted collections' sizes.
func (r *Reaper) Sample(ctx context.Context) (ReaperSnapshot, error) {
	snap := ReaperSnapshot{SampledAt: time.Now()}

	idemp := &IdempotencyStore{db: r.db}
	stats, err := idemp.Stats(ctx)
	if err != nil {
		return snap, err
	}
	snap.IdempotencyCount = stats.Count

	degCount, err := countPrefix(ctx, r.db, degradationKeyPrefix)
	if err != nil {
		return snap, err
	}
	snap.DegradationCount = degCount

	jobCount, err := countPrefix(ctx, r.db, jobKeyPrefix)
	if err != nil {
		return snap, err
	}
	snap.JobCount = jobCount

	return snap, nil
}
