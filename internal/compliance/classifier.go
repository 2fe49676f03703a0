// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// classifierRule is one entry of the substring/regex table the ErrorClassifier
// consults, in priority order.
type classifierRule struct {
	kind     ErrorKind
	pattern  *regexp.Regexp
	substrs  []string
}

// ErrorClassifier maps a raw error to the fixed taxonomy via a
// substring/regex table over a normalized lower-case representation of the
// error. Rules are evaluated in order; the first match wins.
type ErrorClassifier struct {
	rules []classifierRule
}

// NewErrorClassifier builds the classifier with its default rule table.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{
		rules: []classifierRule{
			{kind: ErrQuotaExceeded, substrs: []string{"quota", "rate limit", "rate_limit", "too many requests", "429"}},
			{kind: ErrAuthentication, substrs: []string{"unauthorized", "authentication", "invalid api key", "forbidden", "401", "403"}},
			{kind: ErrTimeout, substrs: []string{"timeout", "timed out", "deadline exceeded", "context deadline"}},
			{kind: ErrServerError, pattern: regexp.MustCompile(`\b5\d\d\b`), substrs: []string{"internal server error", "server error", "bad gateway", "service unavailable"}},
			{kind: ErrNetwork, substrs: []string{"connection refused", "no such host", "network is unreachable", "broken pipe", "dial tcp", "econnreset", "eof"}},
			{kind: ErrValidation, substrs: []string{"validation", "invalid input", "malformed"}},
			{kind: ErrMissingData, substrs: []string{"missing", "not found", "no such key", "required field"}},
		},
	}
}

// Classify maps a raw error to the closed taxonomy. A nil error classifies
// as ErrUnknown; callers should not call Classify(nil) in practice.
func (c *ErrorClassifier) Classify(err error) ErrorKind {
	if err == nil {
		return ErrUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	normalized := strings.ToLower(err.Error())
	for _, rule := range c.rules {
		for _, s := range rule.substrs {
			if strings.Contains(normalized, s) {
				return rule.kind
			}
		}
		if rule.pattern != nil && rule.pattern.MatchString(normalized) {
			return rule.kind
		}
	}
	return ErrUnknown
}

// ClassifyString is a convenience wrapper for callers holding a raw message
// rather than an error value.
func (c *ErrorClassifier) ClassifyString(msg string) ErrorKind {
	if msg == "" {
		return ErrUnknown
	}
	return c.Classify(errors.New(msg))
}
