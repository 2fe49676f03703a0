// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCallDeadline is the per-call LLM deadline.
const DefaultCallDeadline = 120 * time.Second

// LLMCaller is implemented by every concrete LLM provider client. Estimated
// and actual token accounting is the caller's responsibility; LLMCaller
// itself only performs the call.
type LLMCaller interface {
	// ID is the provider identifier used by the registry and quota tracker.
	ID() string
	// Call issues prompt against the provider, returning the generated text
	// and the actual token count consumed (when obtainable; 0 if unknown).
	Call(ctx context.Context, prompt string) (text string, actualTokens int64, err error)
}

// ErrNoProviderAvailable is returned when every provider is blacklisted or
// no providers are registered.
var ErrNoProviderAvailable = errors.New("no provider available")

// ProviderManager picks a provider for each LLM call via the registry,
// enforces quota, classifies failures, and fails over across providers.
type ProviderManager struct {
	registry   *ProviderRegistry
	quota      *QuotaTracker
	classifier *ErrorClassifier
	callers    map[string]LLMCaller
	deadline   time.Duration
	logger     *slog.Logger
}

// NewProviderManager constructs a ProviderManager. callers must contain an
// LLMCaller for every provider ID known to registry.
func NewProviderManager(registry *ProviderRegistry, quota *QuotaTracker, classifier *ErrorClassifier, callers map[string]LLMCaller, logger *slog.Logger) *ProviderManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderManager{
		registry:   registry,
		quota:      quota,
		classifier: classifier,
		callers:    callers,
		deadline:   DefaultCallDeadline,
		logger:     logger,
	}
}

// Call implements the C7 algorithm: select a provider, check quota, issue
// the call with a per-call deadline, and fail over across providers on a
// retryable classified error. It never retries the same provider for a
// non-transient error.
func (m *ProviderManager) Call(ctx context.Context, prompt string, estimatedTokens int64) (string, error) {
	tried := map[string]bool{}

	for {
		provider, ok := m.registry.Select()
		if ok && tried[provider] {
			// Select prefers the primary even after this call has tried it;
			// take the first provider in declared order not yet tried.
			ok = false
			for _, id := range m.registry.order {
				if e, exists := m.registry.entries[id]; exists && !tried[id] && !m.registry.isBlacklisted(e) {
					provider, ok = id, true
					break
				}
			}
		}
		if !ok {
			return "", fmt.Errorf("%w", ErrNoProviderAvailable)
		}
		tried[provider] = true

		allow, reason, err := m.quota.Check(ctx, provider, estimatedTokens)
		if err != nil {
			return "", fmt.Errorf("quota check for %s: %w", provider, err)
		}
		if !allow {
			m.logger.Warn("provider quota denied call", "provider", provider, "reason", reason)
			m.registry.MarkFailure(provider, ErrQuotaExceeded)
			continue
		}

		caller, ok := m.callers[provider]
		if !ok {
			return "", fmt.Errorf("no LLM caller registered for provider %s", provider)
		}

		callCtx, cancel := context.WithTimeout(ctx, m.deadline)
		text, actualTokens, callErr := caller.Call(callCtx, prompt)
		cancel()

		if callErr == nil {
			if err := m.quota.Record(ctx, provider, actualTokens, 1); err != nil {
				m.logger.Warn("failed to record quota usage", "provider", provider, "error", err)
			}
			m.registry.MarkSuccess(provider)
			return text, nil
		}

		kind := m.classifier.Classify(callErr)
		m.registry.MarkFailure(provider, kind)
		m.logger.Warn("provider call failed", "provider", provider, "error_kind", kind, "error", callErr)

		if !kind.Retryable() {
			return "", &ErrorRecord{Kind: kind, Message: callErr.Error()}
		}
		// Retryable: loop to select the next non-blacklisted provider.
	}
}
