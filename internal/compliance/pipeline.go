// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopcompliance/engine/internal/compliance/rulematch"
)

// Matcher is the rule-based policy matcher stage 0 consults.
type Matcher = rulematch.Matcher

// DefaultRegenerationThreshold is τ, the compliance-ratio threshold below
// which stage 3 runs.
const DefaultRegenerationThreshold = 95.0

// StageContext is the explicit record passed by reference through every
// stage. Stage outputs are named fields; an early exit is a single flag plus
// a pre-built terminal result, never exception control flow.
type StageContext struct {
	Ctx context.Context
	Job *Job

	ShouldExit bool
	ExitResult *AnalysisResult

	MatchVerdict    MatchVerdict
	MatchConfidence float64

	ComplianceReport *ComplianceReport
	ImprovedPolicy   *ImprovedPolicy

	FailedStages  []string
	CriticalError *ErrorRecord

	ServedFromFallback bool

	IsCancelled func() bool
}

func (c *StageContext) cancelled() bool {
	return c.IsCancelled != nil && c.IsCancelled()
}

// Stage is a typed record, not a class in an inheritance hierarchy. A flat,
// index-ordered slice of these is the entire pipeline shape.
type Stage struct {
	Name          string
	StatusMessage string
	Required      bool
	Guard         func(ctx *StageContext) bool
	Execute       func(ctx *StageContext) error
}

// ProgressEmitter is called immediately before executing a stage, and once
// more after the final stage with current == total.
type ProgressEmitter func(current, total int, statusMessage string)

// StagePipeline is the ordered five-stage executor (C9).
type StagePipeline struct {
	stages     []Stage
	classifier *ErrorClassifier
	fallback   *DegradationStore
	logger     *slog.Logger
}

// NewStagePipeline builds the canonical five-stage pipeline (indices 0-4)
// against the given components.
func NewStagePipeline(matcher *Matcher, analyzer *Analyzer, classifier *ErrorClassifier, fallback *DegradationStore, threshold float64, uncertaintyLow, uncertaintyHigh float64, logger *slog.Logger) *StagePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold == 0 {
		threshold = DefaultRegenerationThreshold
	}

	stages := []Stage{
		{
			Name:          "rule_based_match",
			StatusMessage: "Checking policy against rule-based requirements",
			Required:      true,
			Guard:         func(*StageContext) bool { return true },
			Execute: func(sc *StageContext) error {
				result := matcher.Match(sc.Job.PolicyType, NormalizeText(sc.Job.PolicyText))
				sc.MatchVerdict = MatchVerdict(result.Verdict)
				sc.MatchConfidence = result.Confidence
				if sc.MatchVerdict == VerdictMismatch {
					sc.ShouldExit = true
					sc.ExitResult = nonComplianceTerminal(sc)
				}
				return nil
			},
		},
		{
			Name:          "llm_assisted_match",
			StatusMessage: "Refining match verdict with an LLM-assisted review",
			Required:      false,
			Guard: func(sc *StageContext) bool {
				return sc.MatchConfidence > uncertaintyLow && sc.MatchConfidence < uncertaintyHigh
			},
			Execute: func(sc *StageContext) error {
				if sc.cancelled() {
					return &ErrorRecord{Kind: ErrCancelled, Message: "cancelled before LLM-assisted match"}
				}
				verdict, confidence, err := analyzer.RefineMatch(sc.Ctx, sc.Job, sc.MatchVerdict, sc.MatchConfidence)
				if err != nil {
					return err
				}
				sc.MatchVerdict = verdict
				sc.MatchConfidence = confidence
				if sc.MatchVerdict == VerdictMismatch {
					sc.ShouldExit = true
					sc.ExitResult = nonComplianceTerminal(sc)
				}
				return nil
			},
		},
		{
			Name:          "compliance_analysis",
			StatusMessage: "Analyzing policy compliance",
			Required:      true,
			Guard:         func(*StageContext) bool { return true },
			Execute: func(sc *StageContext) error {
				if sc.cancelled() {
					return &ErrorRecord{Kind: ErrCancelled, Message: "cancelled before compliance analysis"}
				}
				report, err := analyzer.Analyze(sc.Ctx, sc.Job)
				if err != nil {
					return err
				}
				sc.ComplianceReport = report
				return nil
			},
		},
		{
			Name:          "policy_regeneration",
			StatusMessage: "Regenerating an improved policy draft",
			Required:      false,
			Guard: func(sc *StageContext) bool {
				return sc.ComplianceReport != nil && sc.ComplianceReport.OverallComplianceRatio < threshold
			},
			Execute: func(sc *StageContext) error {
				if sc.cancelled() {
					return &ErrorRecord{Kind: ErrCancelled, Message: "cancelled before policy regeneration"}
				}
				improved, err := analyzer.Regenerate(sc.Ctx, sc.Job, sc.ComplianceReport)
				if err != nil {
					return err
				}
				sc.ImprovedPolicy = improved
				return nil
			},
		},
		{
			Name:          "finalization",
			StatusMessage: "Finalizing analysis result",
			Required:      true,
			Guard:         func(*StageContext) bool { return true },
			Execute: func(sc *StageContext) error {
				if sc.MatchVerdict == "" || sc.ComplianceReport == nil {
					return &ErrorRecord{Kind: ErrMissingData, Message: "match_verdict and compliance_report must both be present at finalization"}
				}
				sc.ExitResult = &AnalysisResult{
					Success:          true,
					MatchVerdict:     sc.MatchVerdict,
					MatchConfidence:  sc.MatchConfidence,
					ComplianceReport: sc.ComplianceReport,
					ImprovedPolicy:   sc.ImprovedPolicy,
				}
				return nil
			},
		},
	}

	return &StagePipeline{stages: stages, classifier: classifier, fallback: fallback, logger: logger}
}

func nonComplianceTerminal(sc *StageContext) *AnalysisResult {
	return &AnalysisResult{
		Success:      true,
		MatchVerdict: sc.MatchVerdict,
		MatchConfidence: sc.MatchConfidence,
		ComplianceReport: &ComplianceReport{
			OverallComplianceRatio: 0,
			ComplianceGrade:        "F",
			Summary:                "The submitted policy text does not address the declared policy type.",
		},
	}
}

// Run executes the five stages in order against sc, emitting progress via
// emit before each dispatched stage and once more after the last stage.
func (p *StagePipeline) Run(sc *StageContext, emit ProgressEmitter) (*AnalysisResult, *ErrorRecord) {
	total := len(p.stages)

	for i, stage := range p.stages {
		if sc.cancelled() {
			return nil, &ErrorRecord{Kind: ErrCancelled, Message: "job cancelled", CompletedStages: sc.Job.CompletedStages}
		}

		shouldRun := stage.Guard(sc)
		emit(i+1, total, stage.StatusMessage)

		if !shouldRun {
			p.logger.Info("stage skipped", "stage", stage.Name, "job_id", sc.Job.JobID)
			sc.Job.CompletedStages = append(sc.Job.CompletedStages, StageResult{Stage: stage.Name, Outcome: StageSkipped})
			continue
		}

		start := time.Now()
		err := stage.Execute(sc)
		duration := time.Since(start)

		if err != nil {
			kind := p.classifier.Classify(err)
			if rec, ok := err.(*ErrorRecord); ok {
				kind = rec.Kind
			}

			// Cancellation always fails the job, even from an optional stage:
			// absorbing it into FailedStages would let a cancelled job reach
			// finalization and complete successfully.
			if kind == ErrCancelled {
				sc.CriticalError = &ErrorRecord{
					Kind:            ErrCancelled,
					Message:         err.Error(),
					CompletedStages: sc.Job.CompletedStages,
					FailedStage:     stage.Name,
				}
				return nil, sc.CriticalError
			}

			if stage.Required {
				if result, ok := p.tryFallback(sc); ok {
					sc.Job.CompletedStages = append(sc.Job.CompletedStages, StageResult{Stage: stage.Name, Outcome: StageFailed, Duration: duration})
					return result, nil
				}
				sc.CriticalError = &ErrorRecord{
					Kind:            kind,
					Message:         err.Error(),
					CompletedStages: sc.Job.CompletedStages,
					FailedStage:     stage.Name,
				}
				return nil, sc.CriticalError
			}

			p.logger.Warn("optional stage failed, continuing", "stage", stage.Name, "error", err)
			sc.FailedStages = append(sc.FailedStages, stage.Name)
			sc.Job.CompletedStages = append(sc.Job.CompletedStages, StageResult{Stage: stage.Name, Outcome: StageFailed, Duration: duration})
			continue
		}

		sc.Job.CompletedStages = append(sc.Job.CompletedStages, StageResult{Stage: stage.Name, Outcome: StageOK, Duration: duration})

		if sc.ShouldExit {
			emit(total, total, "Analysis complete")
			return sc.ExitResult, nil
		}
	}

	emit(total, total, "Analysis complete")
	return sc.ExitResult, nil
}

func (p *StagePipeline) tryFallback(sc *StageContext) (*AnalysisResult, bool) {
	if p.fallback == nil {
		return nil, false
	}
	found, err := p.fallback.Find(sc.Ctx, sc.Job.PolicyType, sc.Job.ContentHash)
	if err != nil || found == nil {
		return nil, false
	}
	p.logger.Info("served from graceful-degradation fallback", "job_id", sc.Job.JobID, "policy_type", sc.Job.PolicyType)
	result := *found
	result.ServedFromCache = fmt.Sprintf("degradation:%s", sc.Job.ContentHash)
	return &result, true
}
