// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/shopcompliance/engine/internal/storage/badger"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIdempotencyStore_StoreGetHasDelete(t *testing.T) {
	db := newTestDB(t)
	s := NewIdempotencyStore(db)
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %v err=%v", got, err)
	}

	result := &AnalysisResult{Success: true, MatchVerdict: VerdictMatch}
	if err := s.Store(ctx, "key-1", result, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}

	has, err := s.Has(ctx, "key-1")
	if err != nil || !has {
		t.Fatalf("expected has=true, got %v err=%v", has, err)
	}

	got, err = s.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.MatchVerdict != VerdictMatch {
		t.Fatalf("unexpected value: %+v", got)
	}

	if err := s.Delete(ctx, "key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	has, err = s.Has(ctx, "key-1")
	if err != nil || has {
		t.Fatalf("expected has=false after delete, got %v err=%v", has, err)
	}
}

func TestIdempotencyStore_UpsertKeepsLastWriter(t *testing.T) {
	db := newTestDB(t)
	s := NewIdempotencyStore(db)
	ctx := context.Background()

	_ = s.Store(ctx, "key", &AnalysisResult{MatchVerdict: VerdictMatch}, time.Hour)
	_ = s.Store(ctx, "key", &AnalysisResult{MatchVerdict: VerdictMismatch}, time.Hour)

	got, err := s.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MatchVerdict != VerdictMismatch {
		t.Errorf("expected last write to win, got %v", got.MatchVerdict)
	}
}

func TestIdempotencyStore_Stats(t *testing.T) {
	db := newTestDB(t)
	s := NewIdempotencyStore(db)
	ctx := context.Background()

	_ = s.Store(ctx, "a", &AnalysisResult{}, time.Hour)
	_ = s.Store(ctx, "b", &AnalysisResult{}, time.Hour)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("expected count 2, got %d", stats.Count)
	}
}

func TestDegradationStore_FindStrictEquality(t *testing.T) {
	db := newTestDB(t)
	s := NewDegradationStore(db)
	ctx := context.Background()

	result := &AnalysisResult{Success: true}
	if err := s.Store(ctx, "returns", "hash-1", result, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Find(ctx, "returns", "hash-1")
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %v err=%v", got, err)
	}

	if got, err := s.Find(ctx, "privacy", "hash-1"); err != nil || got != nil {
		t.Fatalf("expected miss on mismatched policy_type, got %v err=%v", got, err)
	}
	if got, err := s.Find(ctx, "returns", "hash-2"); err != nil || got != nil {
		t.Fatalf("expected miss on mismatched content_hash, got %v err=%v", got, err)
	}
}

func TestDegradationStore_Clear(t *testing.T) {
	db := newTestDB(t)
	s := NewDegradationStore(db)
	ctx := context.Background()

	_ = s.Store(ctx, "returns", "hash-1", &AnalysisResult{}, time.Hour)
	_ = s.Store(ctx, "returns", "hash-2", &AnalysisResult{}, time.Hour)
	_ = s.Store(ctx, "privacy", "hash-3", &AnalysisResult{}, time.Hour)

	if err := s.Clear(ctx, "returns"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if got, _ := s.Find(ctx, "returns", "hash-1"); got != nil {
		t.Error("expected returns:hash-1 cleared")
	}
	if got, _ := s.Find(ctx, "returns", "hash-2"); got != nil {
		t.Error("expected returns:hash-2 cleared")
	}
	if got, _ := s.Find(ctx, "privacy", "hash-3"); got == nil {
		t.Error("expected privacy:hash-3 to survive clearing a different policy type")
	}
}
