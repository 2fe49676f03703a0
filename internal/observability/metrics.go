// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the compliance
// engine: job lifecycle counts, provider call outcomes, quota headroom,
// idempotency hit ratio, and stream subscriber counts.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopcompliance"

// EngineMetrics holds every Prometheus metric emitted by the engine.
// Initialize once at startup via InitMetrics().
type EngineMetrics struct {
	// JobsSubmittedTotal counts submissions by path (submit, force_new).
	JobsSubmittedTotal *prometheus.CounterVec

	// JobsCompletedTotal counts terminal jobs by status (completed, failed)
	// and, when failed, error kind.
	JobsCompletedTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage execution time by stage name
	// and outcome (ok, skipped, failed).
	StageDurationSeconds *prometheus.HistogramVec

	// ProviderCallsTotal counts LLM calls by provider and outcome
	// (success, retryable_error, non_retryable_error).
	ProviderCallsTotal *prometheus.CounterVec

	// ProviderBlacklistedGauge is 1 when a provider is currently
	// blacklisted, 0 otherwise. Labels: provider.
	ProviderBlacklistedGauge *prometheus.GaugeVec

	// QuotaUsageRatio tracks daily token usage as a fraction of cap.
	// Labels: provider.
	QuotaUsageRatio *prometheus.GaugeVec

	// IdempotencyLookupsTotal counts idempotency store lookups by outcome
	// (hit, miss).
	IdempotencyLookupsTotal *prometheus.CounterVec

	// ActiveStreamSubscribers tracks currently subscribed event streams.
	ActiveStreamSubscribers prometheus.Gauge

	// QueueDepth tracks the number of jobs waiting to be picked up by a
	// worker.
	QueueDepth prometheus.Gauge
}

// Default is the process-wide metrics instance, set by InitMetrics.
var Default *EngineMetrics

// InitMetrics registers every metric against the default Prometheus
// registry. Panics if called twice, matching promauto's own behavior.
func InitMetrics() *EngineMetrics {
	Default = &EngineMetrics{
		JobsSubmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total analysis jobs submitted, by submission path.",
		}, []string{"path"}),

		JobsCompletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total analysis jobs that reached a terminal state.",
		}, []string{"status", "error_kind"}),

		StageDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration by stage name and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "outcome"}),

		ProviderCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "LLM provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),

		ProviderBlacklistedGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "blacklisted",
			Help:      "1 if the provider is currently blacklisted, 0 otherwise.",
		}, []string{"provider"}),

		QuotaUsageRatio: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "daily_token_ratio",
			Help:      "Daily token usage as a fraction of the provider's cap.",
		}, []string{"provider"}),

		IdempotencyLookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idempotency",
			Name:      "lookups_total",
			Help:      "Idempotency store lookups by outcome.",
		}, []string{"outcome"}),

		ActiveStreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_subscribers",
			Help:      "Number of currently subscribed event streams.",
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Number of jobs waiting to be picked up by a worker.",
		}),
	}
	return Default
}
