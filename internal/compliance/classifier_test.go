// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"errors"
	"testing"
)

func TestErrorClassifier_Classify(t *testing.T) {
	c := NewErrorClassifier()
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"quota", errors.New("Rate limit exceeded, try again later"), ErrQuotaExceeded},
		{"auth", errors.New("401 Unauthorized: invalid api key"), ErrAuthentication},
		{"timeout", errors.New("context deadline exceeded while waiting for response"), ErrTimeout},
		{"server error", errors.New("received 503 Service Unavailable"), ErrServerError},
		{"network", errors.New("dial tcp: connection refused"), ErrNetwork},
		{"validation", errors.New("validation failed: malformed payload"), ErrValidation},
		{"missing data", errors.New("required field policy_text not found"), ErrMissingData},
		{"unknown", errors.New("something bizarre happened"), ErrUnknown},
		{"context canceled", context.Canceled, ErrCancelled},
		{"context deadline sentinel", context.DeadlineExceeded, ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorClassifier_Retryable(t *testing.T) {
	retryable := []ErrorKind{ErrTimeout, ErrServerError, ErrNetwork}
	nonRetryable := []ErrorKind{ErrQuotaExceeded, ErrAuthentication, ErrValidation}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %q to be retryable", k)
		}
	}
	for _, k := range nonRetryable {
		if k.Retryable() {
			t.Errorf("expected %q to not be retryable", k)
		}
	}
}

func TestErrorClassifier_NilError(t *testing.T) {
	c := NewErrorClassifier()
	if got := c.Classify(nil); got != ErrUnknown {
		t.Errorf("Classify(nil) = %q, want %q", got, ErrUnknown)
	}
}
