// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopcompliance/engine/internal/compliance/rulematch"
	"github.com/shopcompliance/engine/internal/storage/badger"
)

const strongReturnsPolicy = "Items may be returned within 30 days for a refund to the original payment method. " +
	"Items must be unused and in original packaging, with the receipt. Contact our customer support team."

func newTestSupervisor(t *testing.T, complianceJSON string) (*Supervisor, *IdempotencyStore, *JobStore, *EventHub) {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idempotency := NewIdempotencyStore(db)
	degradation := NewDegradationStore(db)
	jobs := NewJobStore(db)
	hub := NewEventHub()
	validator := NewInputValidator()
	fp := NewFingerprinter()
	classifier := NewErrorClassifier()

	matcher, err := rulematch.NewMatcher()
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	registry := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	quota := newTestQuotaTracker(t)
	caller := &fakeCaller{id: "openai", text: complianceJSON}
	manager := NewProviderManager(registry, quota, classifier, map[string]LLMCaller{"openai": caller}, nil)
	analyzer := NewAnalyzer(manager, nil)

	pipelineFor := func() *StagePipeline {
		return NewStagePipeline(matcher, analyzer, classifier, degradation, DefaultRegenerationThreshold, 0.30, 0.70, nil)
	}

	cfg := DefaultSupervisorConfig()
	cfg.Workers = 1
	cfg.HardTimeLimit = 10 * time.Second
	sup := NewSupervisor(cfg, fp, validator, idempotency, degradation, jobs, hub, classifier, pipelineFor, nil)
	return sup, idempotency, jobs, hub
}

func waitForTerminal(t *testing.T, ch <-chan eventBox) eventBox {
	t.Helper()
	var last eventBox
	timeout := time.After(5 * time.Second)
	for {
		select {
		case box, ok := <-ch:
			if !ok {
				return last
			}
			last = box
		case <-timeout:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestSupervisor_SubmitRunsToCompletion(t *testing.T) {
	sup, _, _, hub := newTestSupervisor(t, `{"overall_compliance_ratio": 95, "compliance_grade": "A", "summary": "fine"}`)
	sup.Start(context.Background())
	defer sup.Stop()

	res, err := sup.Submit(context.Background(), SubmitInput{
		ShopName: "Acme", ShopSpecialization: "Retail", PolicyType: "returns", PolicyText: strongReturnsPolicy,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.FromCache {
		t.Fatal("expected a fresh submission, not a cache hit")
	}

	ch, _ := hub.Subscribe(res.JobID)
	last := waitForTerminal(t, ch)
	if last.Event.Kind != EventCompleted {
		t.Fatalf("expected completed event, got %v", last.Event.Kind)
	}

	job, err := sup.Snapshot(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected job status completed, got %v", job.Status)
	}
}

func TestSupervisor_SubmitIdempotencyHit(t *testing.T) {
	sup, idempotency, _, _ := newTestSupervisor(t, `{"overall_compliance_ratio": 95, "compliance_grade": "A", "summary": "fine"}`)
	fp := NewFingerprinter()
	key := fp.IdempotencyKey("Acme", "Retail", "returns", strongReturnsPolicy)
	seeded := &AnalysisResult{Success: true, ComplianceReport: &ComplianceReport{OverallComplianceRatio: 88}}
	if err := idempotency.Store(context.Background(), key, seeded, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	res, err := sup.Submit(context.Background(), SubmitInput{
		ShopName: "Acme", ShopSpecialization: "Retail", PolicyType: "returns", PolicyText: strongReturnsPolicy,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.FromCache {
		t.Fatal("expected a cache hit")
	}
	if res.Result.ComplianceReport.OverallComplianceRatio != 88 {
		t.Fatalf("expected cached result, got %+v", res.Result)
	}
}

func TestSupervisor_ValidationFailureProducesSingleFailedEvent(t *testing.T) {
	sup, _, _, hub := newTestSupervisor(t, `{"overall_compliance_ratio": 95, "compliance_grade": "A", "summary": "fine"}`)
	sup.Start(context.Background())
	defer sup.Stop()

	res, err := sup.Submit(context.Background(), SubmitInput{
		ShopName: "Acme", ShopSpecialization: "Retail", PolicyType: "returns", PolicyText: "too short",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ch, _ := hub.Subscribe(res.JobID)
	var events []eventBox
	for box := range ch {
		events = append(events, box)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one event for a validation failure, got %d", len(events))
	}
	if events[0].Event.Kind != EventFailed {
		t.Fatalf("expected a failed event, got %v", events[0].Event.Kind)
	}

	job, err := sup.Snapshot(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if job.Status != StatusFailed || job.ErrorRecord.Kind != ErrValidation {
		t.Fatalf("expected failed/validation job, got %+v", job)
	}
}

func TestSupervisor_Cancel(t *testing.T) {
	sup, _, _, hub := newTestSupervisor(t, `{"overall_compliance_ratio": 95, "compliance_grade": "A", "summary": "fine"}`)

	res, err := sup.Submit(context.Background(), SubmitInput{
		ShopName: "Acme", ShopSpecialization: "Retail", PolicyType: "returns", PolicyText: strongReturnsPolicy,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Simulate a worker having installed its flag for this job, then verify
	// Cancel flips it and isCancelled observes the flip.
	flag := &atomic.Bool{}
	sup.cancelFlags.Store(res.JobID, flag)
	sup.Cancel(res.JobID)
	if !flag.Load() {
		t.Fatal("expected Cancel to set the job's cancellation flag")
	}
	if !sup.isCancelled(res.JobID) {
		t.Fatal("expected job to be marked cancelled")
	}

	_ = hub
}
