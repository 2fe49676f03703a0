// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"fmt"
	"sync"
	"time"
)

// ClockChecker validates that the wall clock hasn't jumped in a way that
// would corrupt TTL-based expiry decisions: idempotency keys, degradation
// records, and quota windows all key off time.Now(), so a clock set far
// into the future expires them early, and a clock set into the past never
// expires them at all.
type ClockChecker interface {
	// CheckSanity reports an error if the current time falls outside the
	// configured bounds or has jumped more than the allowed amount since
	// the last successful check.
	CheckSanity() error
}

// ClockConfig bounds what counts as a sane wall-clock reading.
type ClockConfig struct {
	MinValidTime    time.Time
	MaxValidTime    time.Time
	MaxBackwardJump time.Duration
	MaxForwardJump  time.Duration
}

// DefaultClockConfig allows wall-clock times from 2020-01-01 up to
// 2040-01-01 UTC and a one-hour backward / two-hour forward jump between
// checks.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MinValidTime:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxValidTime:    time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxBackwardJump: time.Hour,
		MaxForwardJump:  2 * time.Hour,
	}
}

type clockChecker struct {
	config            ClockConfig
	mu                sync.Mutex
	lastKnownGoodTime time.Time
	checked           bool
}

// NewClockChecker builds a ClockChecker with cfg's bounds.
func NewClockChecker(cfg ClockConfig) ClockChecker {
	return &clockChecker{config: cfg}
}

func (c *clockChecker) CheckSanity() error {
	now := time.Now()

	if now.Before(c.config.MinValidTime) {
		return fmt.Errorf("clock sanity: %v is before minimum valid time %v", now, c.config.MinValidTime)
	}
	if now.After(c.config.MaxValidTime) {
		return fmt.Errorf("clock sanity: %v is after maximum valid time %v", now, c.config.MaxValidTime)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checked {
		diff := now.Sub(c.lastKnownGoodTime)
		if diff < -c.config.MaxBackwardJump {
			return fmt.Errorf("clock sanity: backward jump of %v exceeds max %v", -diff, c.config.MaxBackwardJump)
		}
		if diff > c.config.MaxForwardJump {
			return fmt.Errorf("clock sanity: forward jump of %v exceeds max %v", diff, c.config.MaxForwardJump)
		}
	}
	c.lastKnownGoodTime = now
	c.checked = true
	return nil
}

// noopClockChecker always passes; used where sanity checking is disabled.
type noopClockChecker struct{}

// NewNoopClockChecker returns a ClockChecker that never rejects a reading.
func NewNoopClockChecker() ClockChecker { return noopClockChecker{} }

func (noopClockChecker) CheckSanity() error { return nil }
