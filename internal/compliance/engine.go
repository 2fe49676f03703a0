// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badgerstore "github.com/shopcompliance/engine/internal/storage/badger"

	"github.com/shopcompliance/engine/internal/compliance/rulematch"
)

// ProviderSpec names one registered LLM provider and whether it is the
// primary.
type ProviderSpec struct {
	ID      string
	Caller  LLMCaller
	Primary bool
}

// EngineConfig wires every tunable named in the configuration table:
// idempotency/degradation TTLs, quota caps, provider blacklist duration,
// pipeline thresholds, and worker pool sizing.
type EngineConfig struct {
	DBPath            string
	InMemory          bool
	Providers         []ProviderSpec
	ProviderCaps      map[string]ProviderCaps
	BlacklistDuration time.Duration

	RegenerationThreshold float64
	UncertaintyLow        float64
	UncertaintyHigh       float64

	IdempotencyTTL time.Duration
	DegradationTTL time.Duration

	Supervisor SupervisorConfig

	ReaperInterval time.Duration

	Logger *slog.Logger
}

// DefaultEngineConfig returns the documented defaults for every threshold
// (§6's configuration table) with no providers registered; callers must
// append at least one ProviderSpec before New succeeds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BlacklistDuration:     DefaultBlacklistDuration,
		RegenerationThreshold: DefaultRegenerationThreshold,
		UncertaintyLow:        0.30,
		UncertaintyHigh:       0.70,
		IdempotencyTTL:        DefaultIdempotencyTTL,
		DegradationTTL:        DefaultDegradationTTL,
		Supervisor:            DefaultSupervisorConfig(),
		ReaperInterval:        10 * time.Minute,
	}
}

// Engine is the top-level wiring of every numbered component (C1-C11) into
// one runnable service. HTTP delivery lives in internal/httpapi and talks to
// an Engine rather than to the components directly.
type Engine struct {
	cfg EngineConfig

	db          *badgerstore.DB
	fingerprint *Fingerprinter
	validator   *InputValidator
	idempotency *IdempotencyStore
	degradation *DegradationStore
	quota       *QuotaTracker
	registry    *ProviderRegistry
	classifier  *ErrorClassifier
	manager     *ProviderManager
	matcher     *rulematch.Matcher
	analyzer    *Analyzer
	jobs        *JobStore
	hub         *EventHub
	supervisor  *Supervisor
	reaper      *Reaper

	logger *slog.Logger
}

// New constructs an Engine from cfg. It opens (or creates) the BadgerDB
// database, builds every component, and wires the Provider Manager, Stage
// Pipeline, and Job Supervisor together, but does not start background
// workers — call Start for that.
func New(cfg EngineConfig) (*Engine, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be registered")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbCfg := badgerstore.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	dbCfg.InMemory = cfg.InMemory
	dbCfg.Logger = logger
	db, err := badgerstore.OpenDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	matcher, err := rulematch.NewMatcher()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load rule patterns: %w", err)
	}

	classifier := NewErrorClassifier()
	quota := NewQuotaTracker(db, logger, cfg.ProviderCaps)

	var order []string
	primary := ""
	callers := make(map[string]LLMCaller, len(cfg.Providers))
	for _, p := range cfg.Providers {
		order = append(order, p.ID)
		callers[p.ID] = p.Caller
		if p.Primary {
			primary = p.ID
		}
	}
	if primary == "" {
		primary = order[0]
	}
	registry := NewProviderRegistry(order, primary, cfg.BlacklistDuration)
	manager := NewProviderManager(registry, quota, classifier, callers, logger)
	analyzer := NewAnalyzer(manager, nil)

	idempotency := NewIdempotencyStore(db)
	degradation := NewDegradationStore(db)
	jobs := NewJobStore(db)
	hub := NewEventHub()
	validator := NewInputValidator()
	fp := NewFingerprinter()

	pipelineFor := func() *StagePipeline {
		return NewStagePipeline(matcher, analyzer, classifier, degradation,
			cfg.RegenerationThreshold, cfg.UncertaintyLow, cfg.UncertaintyHigh, logger)
	}

	supCfg := cfg.Supervisor
	supCfg.IdempotencyTTL = cfg.IdempotencyTTL
	supCfg.DegradationTTL = cfg.DegradationTTL
	supervisor := NewSupervisor(supCfg, fp, validator, idempotency, degradation, jobs, hub, classifier, pipelineFor, logger)

	reaper := NewReaper(db, cfg.ReaperInterval, logger)

	return &Engine{
		cfg:         cfg,
		db:          db,
		fingerprint: fp,
		validator:   validator,
		idempotency: idempotency,
		degradation: degradation,
		quota:       quota,
		registry:    registry,
		classifier:  classifier,
		manager:     manager,
		matcher:     matcher,
		analyzer:    analyzer,
		jobs:        jobs,
		hub:         hub,
		supervisor:  supervisor,
		reaper:      reaper,
		logger:      logger,
	}, nil
}

// Start launches the worker pool and the reaper. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.supervisor.Start(ctx)
	e.reaper.Start(ctx)
}

// Stop drains in-flight jobs, stops the reaper, and closes the database.
func (e *Engine) Stop() error {
	e.reaper.Stop()
	if err := e.supervisor.Stop(); err != nil {
		e.logger.Warn("supervisor stop error", "error", err)
	}
	return e.db.Close()
}

// Submit implements the external "submit analysis" operation.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	return e.supervisor.Submit(ctx, in)
}

// ForceNew implements the external "force new analysis" operation. Rate
// limiting is enforced by the HTTP layer, not here.
func (e *Engine) ForceNew(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	return e.supervisor.ForceNew(ctx, in)
}

// Status implements the external "get task status" operation.
func (e *Engine) Status(ctx context.Context, jobID string) (*Job, error) {
	return e.supervisor.Snapshot(ctx, jobID)
}

// Cancel implements the external "cancel task" operation.
func (e *Engine) Cancel(jobID string) {
	e.supervisor.Cancel(jobID)
}

// Subscribe implements the external "stream task" operation.
func (e *Engine) Subscribe(jobID string) (<-chan eventBox, func()) {
	return e.hub.Subscribe(jobID)
}

// HealthStatus is the result of aggregating the engine's health checks:
// document store reachability, at least one non-blacklisted provider, and
// daily token quota headroom. The in-process work queue is not checked.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is unhealthy when the database cannot sync or every provider is
// blacklisted, and degraded when any provider has used its daily token cap.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if err := e.db.Sync(); err != nil {
		return HealthUnhealthy
	}
	if !e.registry.AnyAvailable() {
		return HealthUnhealthy
	}
	overCap := false
	for _, providerID := range e.registry.order {
		usage, err := e.quota.Snapshot(ctx, providerID)
		if err != nil {
			continue
		}
		if usage.DailyTokenRatio >= 1.0 {
			overCap = true
		}
	}
	if overCap {
		return HealthDegraded
	}
	return HealthHealthy
}
