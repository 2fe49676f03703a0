// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"testing"
	"time"
)

func TestProviderRegistry_SelectPrefersPrimary(t *testing.T) {
	r := NewProviderRegistry([]string{"openai", "gemini"}, "openai", time.Minute)
	p, ok := r.Select()
	if !ok || p != "openai" {
		t.Fatalf("expected primary openai, got %q ok=%v", p, ok)
	}
}

func TestProviderRegistry_FailoverOnBlacklist(t *testing.T) {
	r := NewProviderRegistry([]string{"openai", "gemini"}, "openai", time.Minute)
	r.MarkFailure("openai", ErrServerError)

	p, ok := r.Select()
	if !ok || p != "gemini" {
		t.Fatalf("expected failover to gemini, got %q ok=%v", p, ok)
	}
}

func TestProviderRegistry_TransientFailureDoesNotBlacklist(t *testing.T) {
	r := NewProviderRegistry([]string{"openai", "gemini"}, "openai", time.Minute)
	r.MarkFailure("openai", ErrValidation)

	p, ok := r.Select()
	if !ok || p != "openai" {
		t.Fatalf("expected openai to remain selectable after non-crash failure, got %q ok=%v", p, ok)
	}
}

func TestProviderRegistry_AllBlacklisted(t *testing.T) {
	r := NewProviderRegistry([]string{"openai", "gemini"}, "openai", time.Minute)
	r.MarkFailure("openai", ErrServerError)
	r.MarkFailure("gemini", ErrTimeout)
	r.MarkFailure("gemini", ErrTimeout)

	_, ok := r.Select()
	if ok {
		t.Fatal("expected no provider available when all are blacklisted")
	}
}

func TestProviderRegistry_BlacklistExpires(t *testing.T) {
	r := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	r.now = func() time.Time { return time.Unix(1000, 0) }
	r.MarkFailure("openai", ErrServerError)

	if _, ok := r.Select(); ok {
		t.Fatal("expected openai to be blacklisted immediately after failure")
	}

	r.now = func() time.Time { return time.Unix(1000, 0).Add(2 * time.Minute) }
	if _, ok := r.Select(); !ok {
		t.Fatal("expected openai to be selectable after blacklist window elapses")
	}
}

func TestProviderRegistry_SwitchPrimary(t *testing.T) {
	r := NewProviderRegistry([]string{"openai", "gemini"}, "openai", time.Minute)
	r.SwitchPrimary("gemini")

	snap := r.Snapshot()
	for _, h := range snap {
		if h.ProviderID == "gemini" && !h.IsPrimary {
			t.Error("expected gemini to be primary after switch")
		}
		if h.ProviderID == "openai" && h.IsPrimary {
			t.Error("expected openai to no longer be primary")
		}
	}
}

func TestProviderRegistry_MarkSuccessResetsFailures(t *testing.T) {
	r := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	r.MarkFailure("openai", ErrValidation)
	r.MarkSuccess("openai")

	snap := r.Snapshot()
	if snap[0].ConsecutiveFailures != 0 {
		t.Errorf("expected consecutive failures reset to 0, got %d", snap[0].ConsecutiveFailures)
	}
	if snap[0].SuccessCount != 1 {
		t.Errorf("expected success count 1, got %d", snap[0].SuccessCount)
	}
}
