// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopcompliance/engine/internal/compliance/rulematch"
)

func newTestAnalyzer(t *testing.T, complianceJSON string) *Analyzer {
	t.Helper()
	registry := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	quota := newTestQuotaTracker(t)
	caller := &fakeCaller{id: "openai", text: complianceJSON}
	manager := NewProviderManager(registry, quota, NewErrorClassifier(), map[string]LLMCaller{"openai": caller}, nil)
	return NewAnalyzer(manager, nil)
}

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := rulematch.NewMatcher()
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m
}

func TestStagePipeline_HappyPath(t *testing.T) {
	matcher := newTestMatcher(t)
	analyzer := newTestAnalyzer(t, `{"overall_compliance_ratio": 97, "compliance_grade": "A", "summary": "Solid policy."}`)
	pipeline := NewStagePipeline(matcher, analyzer, NewErrorClassifier(), nil, 95, 0.30, 0.70, nil)

	job := &Job{
		JobID:      "job-1",
		PolicyType: "returns",
		PolicyText: "Items may be returned within 30 days for a refund to the original payment method. " +
			"Items must be unused and in original packaging, with the receipt. Contact our customer support team.",
	}
	sc := &StageContext{Ctx: context.Background(), Job: job}

	var progressEvents []int
	result, errRec := pipeline.Run(sc, func(current, total int, status string) {
		progressEvents = append(progressEvents, current)
	})

	if errRec != nil {
		t.Fatalf("unexpected error: %v", errRec)
	}
	if result == nil || !result.Success {
		t.Fatalf("expected successful result, got %+v", result)
	}
	if result.ComplianceReport == nil || result.ComplianceReport.OverallComplianceRatio != 97 {
		t.Fatalf("expected compliance ratio 97, got %+v", result.ComplianceReport)
	}
	if result.ImprovedPolicy != nil {
		t.Error("expected no regeneration above threshold")
	}
	if len(progressEvents) == 0 || progressEvents[len(progressEvents)-1] != 5 {
		t.Errorf("expected final progress event current=5, got %v", progressEvents)
	}
}

func TestStagePipeline_RegenerationBelowThreshold(t *testing.T) {
	matcher := newTestMatcher(t)
	registry := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	quota := newTestQuotaTracker(t)
	responses := []string{
		`{"overall_compliance_ratio": 40, "compliance_grade": "D", "summary": "Weak policy."}`,
		`{"improved_policy": "Rewritten text.", "improvements_made": ["Added refund window"], "estimated_new_compliance": 90}`,
	}
	call := 0
	caller := &sequenceCaller{responses: responses, calls: &call}
	manager := NewProviderManager(registry, quota, NewErrorClassifier(), map[string]LLMCaller{"openai": caller}, nil)
	analyzer := NewAnalyzer(manager, nil)

	pipeline := NewStagePipeline(matcher, analyzer, NewErrorClassifier(), nil, 95, 0.30, 0.70, nil)
	job := &Job{JobID: "job-2", PolicyType: "returns", PolicyText: "Items may be returned within 30 days for a refund to the original payment method. " +
		"Items must be unused and in original packaging, with the receipt. Contact our customer support team."}
	sc := &StageContext{Ctx: context.Background(), Job: job}

	result, errRec := pipeline.Run(sc, func(int, int, string) {})
	if errRec != nil {
		t.Fatalf("unexpected error: %v", errRec)
	}
	if result.ImprovedPolicy == nil {
		t.Fatal("expected regeneration to run below threshold")
	}
	if result.ImprovedPolicy.EstimatedNewCompliance != 90 {
		t.Errorf("got %+v", result.ImprovedPolicy)
	}
}

func TestStagePipeline_Cancellation(t *testing.T) {
	matcher := newTestMatcher(t)
	analyzer := newTestAnalyzer(t, `{"overall_compliance_ratio": 97, "compliance_grade": "A", "summary": "x"}`)
	pipeline := NewStagePipeline(matcher, analyzer, NewErrorClassifier(), nil, 95, 0.30, 0.70, nil)

	job := &Job{JobID: "job-3", PolicyType: "returns", PolicyText: "Items may be returned within 30 days for a refund."}
	cancelled := true
	sc := &StageContext{Ctx: context.Background(), Job: job, IsCancelled: func() bool { return cancelled }}

	_, errRec := pipeline.Run(sc, func(int, int, string) {})
	if errRec == nil || errRec.Kind != ErrCancelled {
		t.Fatalf("expected cancelled error, got %v", errRec)
	}
}

func TestStagePipeline_CancellationDuringOptionalStageFailsJob(t *testing.T) {
	matcher := newTestMatcher(t)
	registry := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	quota := newTestQuotaTracker(t)
	caller := &fakeCaller{id: "openai", text: `{"overall_compliance_ratio": 40, "compliance_grade": "D", "summary": "Weak policy."}`}
	manager := NewProviderManager(registry, quota, NewErrorClassifier(), map[string]LLMCaller{"openai": caller}, nil)
	analyzer := NewAnalyzer(manager, nil)

	pipeline := NewStagePipeline(matcher, analyzer, NewErrorClassifier(), nil, 95, 0.30, 0.70, nil)
	job := &Job{JobID: "job-5", PolicyType: "returns",
		PolicyText: "Items may be returned within 30 days for a refund to the original payment method. " +
			"Items must be unused and in original packaging, with the receipt. Contact our customer support team."}

	// Cancellation arrives only once the optional policy_regeneration stage
	// (below the 95 compliance-ratio threshold, so its Guard fires) actually
	// starts executing, not before. A cancellation raised inside an optional
	// stage must still fail the job rather than being absorbed as a
	// best-effort skip.
	calls := 0
	sc := &StageContext{Ctx: context.Background(), Job: job, IsCancelled: func() bool {
		calls++
		return calls >= 6
	}}

	result, errRec := pipeline.Run(sc, func(int, int, string) {})
	if errRec == nil {
		t.Fatal("expected cancellation raised inside the optional stage to fail the job")
	}
	if errRec.Kind != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", errRec.Kind)
	}
	if result != nil {
		t.Fatalf("expected no result on cancellation, got %+v", result)
	}
}

func TestStagePipeline_RequiredStageFallback(t *testing.T) {
	matcher := newTestMatcher(t)
	registry := NewProviderRegistry([]string{"openai"}, "openai", time.Minute)
	quota := newTestQuotaTracker(t)
	caller := &fakeCaller{id: "openai", err: errors.New("request timed out")}
	manager := NewProviderManager(registry, quota, NewErrorClassifier(), map[string]LLMCaller{"openai": caller}, nil)
	analyzer := NewAnalyzer(manager, nil)

	db := newTestDB(t)
	fallback := NewDegradationStore(db)
	job := &Job{JobID: "job-4", PolicyType: "returns", ContentHash: "hash-x",
		PolicyText: "Items may be returned within 30 days for a refund to the original payment method. " +
			"Items must be unused and in original packaging, with the receipt. Contact our customer support team."}
	cached := &AnalysisResult{Success: true, ComplianceReport: &ComplianceReport{OverallComplianceRatio: 80, ComplianceGrade: "B"}}
	if err := fallback.Store(context.Background(), "returns", "hash-x", cached, time.Hour); err != nil {
		t.Fatalf("seed fallback: %v", err)
	}

	pipeline := NewStagePipeline(matcher, analyzer, NewErrorClassifier(), fallback, 95, 0.30, 0.70, nil)
	sc := &StageContext{Ctx: context.Background(), Job: job}
	sc.MatchVerdict = VerdictMatch
	sc.MatchConfidence = 0.80

	result, errRec := pipeline.Run(sc, func(int, int, string) {})
	if errRec != nil {
		t.Fatalf("expected fallback to absorb the error, got %v", errRec)
	}
	if result.ComplianceReport.OverallComplianceRatio != 80 {
		t.Errorf("expected fallback result, got %+v", result)
	}
}

type sequenceCaller struct {
	responses []string
	calls     *int
}

func (s *sequenceCaller) ID() string { return "openai" }
func (s *sequenceCaller) Call(ctx context.Context, prompt string) (string, int64, error) {
	i := *s.calls
	*s.calls++
	if i >= len(s.responses) {
		return "", 0, errors.New("no more canned responses")
	}
	return s.responses[i], 0, nil
}
