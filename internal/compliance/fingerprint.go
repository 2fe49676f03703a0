// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText applies the one documented normalization constant shared by
// the idempotency key and the content hash: casefold, collapse runs of
// whitespace to a single space, strip leading/trailing whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

func stableHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprinter deterministically maps job inputs to an idempotency key and
// maps normalized policy text alone to a content hash. Both hashes are
// expected to be identical across worker restarts, so they must not depend
// on anything but their documented inputs.
type Fingerprinter struct{}

// NewFingerprinter constructs a Fingerprinter. It holds no state.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// IdempotencyKey computes a stable hash over the normalized
// (shop_name, specialization, policy_type, policy_text) tuple.
func (f *Fingerprinter) IdempotencyKey(shopName, specialization, policyType, policyText string) string {
	return stableHash(
		NormalizeText(shopName),
		NormalizeText(specialization),
		NormalizeText(policyType),
		NormalizeText(policyText),
	)
}

// ContentHash computes a stable hash over the normalized policy text alone,
// independent of the shop or specialization, so unrelated shops submitting
// the same boilerplate policy share a degradation-cache entry.
func (f *Fingerprinter) ContentHash(policyText string) string {
	return stableHash(NormalizeText(policyText))
}

// Fingerprint computes both hashes for a submission in one call.
func (f *Fingerprinter) Fingerprint(shopName, specialization, policyType, policyText string) (idempotencyKey, contentHash string) {
	return f.IdempotencyKey(shopName, specialization, policyType, policyText), f.ContentHash(policyText)
}
