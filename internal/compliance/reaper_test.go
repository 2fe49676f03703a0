// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"testing"
	"time"
)

func TestReaper_Sample(t *testing.T) {
	db := newTestDB(t)
	idemp := NewIdempotencyStore(db)
	if err := idemp.Store(context.Background(), "key-1", &AnalysisResult{Success: true}, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}
	degradation := NewDegradationStore(db)
	if err := degradation.Store(context.Background(), "returns", "hash-1", &AnalysisResult{Success: true}, time.Hour); err != nil {
		t.Fatalf("seed degradation: %v", err)
	}
	jobs := NewJobStore(db)
	if err := jobs.Save(context.Background(), &Job{JobID: "job-1"}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	reaper := NewReaper(db, time.Minute, nil)
	snap, err := reaper.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.IdempotencyCount != 1 || snap.DegradationCount != 1 || snap.JobCount != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestReaper_StartStop(t *testing.T) {
	db := newTestDB(t)
	reaper := NewReaper(db, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	reaper.Stop()
}
