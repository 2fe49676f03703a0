// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import "testing"

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "Hello   World\n\tfoo", "hello world foo"},
		{"trims edges", "  Padded  ", "padded"},
		{"already normalized", "already normal", "already normal"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NormalizeText(c.in); got != c.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestFingerprinter_IdempotencyKey_Stable(t *testing.T) {
	f := NewFingerprinter()
	k1 := f.IdempotencyKey("Acme Shop", "Electronics", "returns", "  Returns within 30   days.  ")
	k2 := f.IdempotencyKey("acme shop", "electronics", "RETURNS", "returns within 30 days.")
	if k1 != k2 {
		t.Errorf("expected case/whitespace-insensitive keys to match: %q != %q", k1, k2)
	}
}

func TestFingerprinter_IdempotencyKey_Sensitive(t *testing.T) {
	f := NewFingerprinter()
	k1 := f.IdempotencyKey("Acme Shop", "Electronics", "returns", "text a")
	k2 := f.IdempotencyKey("Acme Shop", "Electronics", "returns", "text b")
	if k1 == k2 {
		t.Error("expected different policy text to produce different idempotency keys")
	}
}

func TestFingerprinter_ContentHash_IgnoresShopIdentity(t *testing.T) {
	f := NewFingerprinter()
	h1 := f.ContentHash("Returns within 30 days.")
	h2 := f.ContentHash("Returns within 30 days.")
	if h1 != h2 {
		t.Error("expected identical text to produce identical content hash across shops")
	}
}

func TestFingerprinter_HashLength(t *testing.T) {
	f := NewFingerprinter()
	key, hash := f.Fingerprint("A", "B", "returns", "some policy text")
	if len(key) != 64 {
		t.Errorf("expected 64-char hex sha256 idempotency key, got %d chars", len(key))
	}
	if len(hash) != 64 {
		t.Errorf("expected 64-char hex sha256 content hash, got %d chars", len(hash))
	}
}
