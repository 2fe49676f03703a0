// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/shopcompliance/engine/internal/storage/badger"
)

var quotaKeyPrefix = []byte("quota:")

// ProviderCaps are the per-provider request/token ceilings for both
// accounting windows.
type ProviderCaps struct {
	DailyRequests  int64
	DailyTokens    int64
	HourlyRequests int64
	HourlyTokens   int64
}

// DefaultProviderCaps returns generous defaults suitable when no explicit
// configuration is supplied for a provider.
func DefaultProviderCaps() ProviderCaps {
	return ProviderCaps{
		DailyRequests:  10000,
		DailyTokens:    10_000_000,
		HourlyRequests: 1000,
		HourlyTokens:   1_000_000,
	}
}

// QuotaDenyReason explains why a quota check denied a call.
type QuotaDenyReason string

const (
	DenyDailyRequests  QuotaDenyReason = "daily_requests_exceeded"
	DenyDailyTokens    QuotaDenyReason = "daily_tokens_exceeded"
	DenyHourlyRequests QuotaDenyReason = "hourly_requests_exceeded"
	DenyHourlyTokens   QuotaDenyReason = "hourly_tokens_exceeded"
)

// QuotaUsage is a point-in-time snapshot returned by Snapshot.
type QuotaUsage struct {
	ProviderID    string  `json:"provider_id"`
	DailyTokens   int64   `json:"daily_tokens"`
	DailyRequests int64   `json:"daily_requests"`
	HourlyTokens  int64   `json:"hourly_tokens"`
	HourlyRequests int64  `json:"hourly_requests"`
	DailyTokenRatio float64 `json:"daily_token_ratio"`
}

// QuotaTracker maintains per-provider daily/hourly token and request
// counters in BadgerDB, mutated via atomic transactional increments.
type QuotaTracker struct {
	db     *badger.DB
	logger *slog.Logger
	caps   map[string]ProviderCaps
	defaultCaps ProviderCaps
}

// NewQuotaTracker constructs a QuotaTracker. caps overrides defaultCaps for
// specific provider IDs.
func NewQuotaTracker(db *badger.DB, logger *slog.Logger, caps map[string]ProviderCaps) *QuotaTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if caps == nil {
		caps = map[string]ProviderCaps{}
	}
	return &QuotaTracker{db: db, logger: logger, caps: caps, defaultCaps: DefaultProviderCaps()}
}

func (q *QuotaTracker) capsFor(provider string) ProviderCaps {
	if c, ok := q.caps[provider]; ok {
		return c
	}
	return q.defaultCaps
}

func periodKeys(now time.Time) (dailyKey string, dailyExpires time.Time, hourlyKey string, hourlyExpires time.Time) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.UTC().Location())
	hourStart := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.UTC().Location())
	return dayStart.Format("2006-01-02"), dayStart.Add(24 * time.Hour),
		hourStart.Format("2006-01-02T15"), hourStart.Add(time.Hour)
}

func counterDBKey(provider string, periodType PeriodType, periodKey string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", quotaKeyPrefix, provider, periodType, periodKey))
}

func (q *QuotaTracker) loadCounter(txn *badgerdb.Txn, key []byte) (*QuotaCounter, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c QuotaCounter
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &c) })
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Check reports whether provider is allowed to spend estimatedTokens more,
// without mutating any counter. It denies on the first cap that would be
// exceeded and logs at 75%/90% usage without denying.
func (q *QuotaTracker) Check(ctx context.Context, provider string, estimatedTokens int64) (allow bool, reason QuotaDenyReason, err error) {
	caps := q.capsFor(provider)
	now := time.Now()
	dailyKey, _, hourlyKey, _ := periodKeys(now)

	var daily, hourly *QuotaCounter
	err = q.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var e error
		daily, e = q.loadCounter(txn, counterDBKey(provider, PeriodDaily, dailyKey))
		if e != nil {
			return e
		}
		hourly, e = q.loadCounter(txn, counterDBKey(provider, PeriodHourly, hourlyKey))
		return e
	})
	if err != nil {
		return false, "", err
	}

	var dailyTokens, dailyRequests, hourlyTokens, hourlyRequests int64
	if daily != nil {
		dailyTokens, dailyRequests = daily.Tokens, daily.Requests
	}
	if hourly != nil {
		hourlyTokens, hourlyRequests = hourly.Tokens, hourly.Requests
	}

	q.warnIfApproaching(provider, "daily_tokens", dailyTokens, caps.DailyTokens)
	q.warnIfApproaching(provider, "daily_requests", dailyRequests, caps.DailyRequests)

	if caps.DailyRequests > 0 && dailyRequests+1 > caps.DailyRequests {
		return false, DenyDailyRequests, nil
	}
	if caps.DailyTokens > 0 && dailyTokens+estimatedTokens > caps.DailyTokens {
		return false, DenyDailyTokens, nil
	}
	if caps.HourlyRequests > 0 && hourlyRequests+1 > caps.HourlyRequests {
		return false, DenyHourlyRequests, nil
	}
	if caps.HourlyTokens > 0 && hourlyTokens+estimatedTokens > caps.HourlyTokens {
		return false, DenyHourlyTokens, nil
	}
	return true, "", nil
}

func (q *QuotaTracker) warnIfApproaching(provider, dim string, used, cap int64) {
	if cap <= 0 {
		return
	}
	ratio := float64(used) / float64(cap)
	switch {
	case ratio >= 0.90:
		q.logger.Warn("provider quota nearing exhaustion", "provider", provider, "dimension", dim, "ratio", ratio)
	case ratio >= 0.75:
		q.logger.Info("provider quota usage elevated", "provider", provider, "dimension", dim, "ratio", ratio)
	}
}

// Record adds actualTokens and requests (default 1) to provider's current
// daily and hourly counters. The increment is performed as a single
// transaction retried on Badger conflict, so concurrent recorders never lose
// an update.
func (q *QuotaTracker) Record(ctx context.Context, provider string, actualTokens int64, requests int64) error {
	if requests == 0 {
		requests = 1
	}
	now := time.Now()
	dailyKey, dailyExpires, hourlyKey, hourlyExpires := periodKeys(now)

	for attempt := 0; attempt < 5; attempt++ {
		err := q.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			if err := q.bumpCounter(txn, provider, PeriodDaily, dailyKey, dailyExpires, actualTokens, requests); err != nil {
				return err
			}
			return q.bumpCounter(txn, provider, PeriodHourly, hourlyKey, hourlyExpires, actualTokens, requests)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			continue
		}
		return err
	}
	return errors.New("quota record: too many transaction conflicts")
}

func (q *QuotaTracker) bumpCounter(txn *badgerdb.Txn, provider string, pt PeriodType, periodKey string, expires time.Time, tokens, requests int64) error {
	key := counterDBKey(provider, pt, periodKey)
	c, err := q.loadCounter(txn, key)
	if err != nil {
		return err
	}
	if c == nil {
		c = &QuotaCounter{ProviderID: provider, PeriodType: pt, PeriodKey: periodKey}
	}
	c.Tokens += tokens
	if c.Tokens < 0 {
		c.Tokens = 0
	}
	c.Requests += requests
	if c.Requests < 0 {
		c.Requests = 0
	}
	c.ExpiresAt = expires

	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	entry := badgerdb.NewEntry(key, payload).WithTTL(time.Until(expires))
	return txn.SetEntry(entry)
}

// Snapshot returns the current usage for provider.
func (q *QuotaTracker) Snapshot(ctx context.Context, provider string) (QuotaUsage, error) {
	caps := q.capsFor(provider)
	now := time.Now()
	dailyKey, _, hourlyKey, _ := periodKeys(now)

	usage := QuotaUsage{ProviderID: provider}
	err := q.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		daily, err := q.loadCounter(txn, counterDBKey(provider, PeriodDaily, dailyKey))
		if err != nil {
			return err
		}
		if daily != nil {
			usage.DailyTokens = daily.Tokens
			usage.DailyRequests = daily.Requests
		}
		hourly, err := q.loadCounter(txn, counterDBKey(provider, PeriodHourly, hourlyKey))
		if err != nil {
			return err
		}
		if hourly != nil {
			usage.HourlyTokens = hourly.Tokens
			usage.HourlyRequests = hourly.Requests
		}
		return nil
	})
	if caps.DailyTokens > 0 {
		usage.DailyTokenRatio = float64(usage.DailyTokens) / float64(caps.DailyTokens)
	}
	return usage, err
}

// Reset clears provider's counters for both accounting windows.
func (q *QuotaTracker) Reset(ctx context.Context, provider string) error {
	now := time.Now()
	dailyKey, _, hourlyKey, _ := periodKeys(now)
	return q.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		for _, key := range [][]byte{
			counterDBKey(provider, PeriodDaily, dailyKey),
			counterDBKey(provider, PeriodHourly, hourlyKey),
		} {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// AnyProviderBelowCap reports whether at least one of the given providers
// has headroom left on its daily token cap, for use by the health endpoint.
func (q *QuotaTracker) AnyProviderBelowCap(ctx context.Context, providers []string) (bool, error) {
	for _, p := range providers {
		usage, err := q.Snapshot(ctx, p)
		if err != nil {
			return false, err
		}
		if usage.DailyTokenRatio < 1.0 {
			return true, nil
		}
	}
	return len(providers) == 0, nil
}
