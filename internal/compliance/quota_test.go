// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"testing"
)

func TestQuotaTracker_AllowThenDeny(t *testing.T) {
	q := newTestQuotaTracker(t)
	q.caps["openai"] = ProviderCaps{DailyRequests: 1, DailyTokens: 1000, HourlyRequests: 10, HourlyTokens: 10000}
	ctx := context.Background()

	allow, _, err := q.Check(ctx, "openai", 100)
	if err != nil || !allow {
		t.Fatalf("expected first check to allow, got allow=%v err=%v", allow, err)
	}
	if err := q.Record(ctx, "openai", 100, 1); err != nil {
		t.Fatalf("record: %v", err)
	}

	allow, reason, err := q.Check(ctx, "openai", 100)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allow {
		t.Fatalf("expected second check to deny on daily request cap, got allow=true")
	}
	if reason != DenyDailyRequests {
		t.Errorf("expected DenyDailyRequests, got %q", reason)
	}
}

func TestQuotaTracker_OneRequestOvershootNeverTwo(t *testing.T) {
	q := newTestQuotaTracker(t)
	q.caps["openai"] = ProviderCaps{DailyRequests: 5, DailyTokens: 100, HourlyRequests: 50, HourlyTokens: 1000}
	ctx := context.Background()

	allow, _, err := q.Check(ctx, "openai", 90)
	if err != nil || !allow {
		t.Fatalf("expected allow under cap, got allow=%v err=%v", allow, err)
	}
	if err := q.Record(ctx, "openai", 90, 1); err != nil {
		t.Fatalf("record: %v", err)
	}

	usage, err := q.Snapshot(ctx, "openai")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if usage.DailyTokens > 100 {
		t.Errorf("tokens_used %d exceeded cap+overshoot bound", usage.DailyTokens)
	}

	allow, reason, err := q.Check(ctx, "openai", 50)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allow {
		t.Fatal("expected second large request to be denied, preventing a second overshoot")
	}
	if reason != DenyDailyTokens {
		t.Errorf("expected DenyDailyTokens, got %q", reason)
	}
}

func TestQuotaTracker_Reset(t *testing.T) {
	q := newTestQuotaTracker(t)
	ctx := context.Background()
	if err := q.Record(ctx, "openai", 500, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := q.Reset(ctx, "openai"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	usage, err := q.Snapshot(ctx, "openai")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if usage.DailyTokens != 0 || usage.DailyRequests != 0 {
		t.Errorf("expected zeroed usage after reset, got %+v", usage)
	}
}
