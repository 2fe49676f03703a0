// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"encoding/json"
	"fmt"
)

// PromptBuilder produces the opaque prompt strings sent to an LLM provider.
// Prompt authoring is an external collaborator's concern; this interface is
// the seam the pipeline calls through, not a prompt implementation.
type PromptBuilder interface {
	StageOneMatchPrompt(job *Job, verdict MatchVerdict, confidence float64) string
	ComplianceAnalysisPrompt(job *Job) string
	PolicyRegenerationPrompt(job *Job, report *ComplianceReport) string
}

// DefaultPromptBuilder is a minimal, self-contained PromptBuilder used when
// no external prompt module is wired in.
type DefaultPromptBuilder struct{}

func (DefaultPromptBuilder) StageOneMatchPrompt(job *Job, verdict MatchVerdict, confidence float64) string {
	return fmt.Sprintf(
		"You are reviewing whether a shop policy document actually addresses its declared category.\n"+
			"Shop: %s (%s)\nDeclared policy_type: %s\nRule-based verdict: %s (confidence %.2f)\n\n"+
			"Policy text:\n%s\n\n"+
			"Respond with JSON: {\"verdict\": \"match\"|\"mismatch\"|\"unsure\", \"confidence\": <0..1>}.",
		job.ShopName, job.ShopSpecialization, job.PolicyType, verdict, confidence, job.PolicyText,
	)
}

func (DefaultPromptBuilder) ComplianceAnalysisPrompt(job *Job) string {
	return fmt.Sprintf(
		"Analyze the following %s policy for a shop specializing in %s against standard regulatory "+
			"expectations for this category. Policy text:\n%s\n\n"+
			"Respond with JSON matching: {\"overall_compliance_ratio\": <0..100>, \"compliance_grade\": <string>, "+
			"\"summary\": <string>, \"critical_issues\": [...], \"weaknesses\": [...], \"strengths\": [...], "+
			"\"ambiguities\": [...], \"recommendations\": [...]}. Each list entry is "+
			"{\"phrase\": <string>, \"severity\": <string>, \"suggestion\": <string>, \"reference\": <string>}.",
		job.PolicyType, job.ShopSpecialization, job.PolicyText,
	)
}

func (DefaultPromptBuilder) PolicyRegenerationPrompt(job *Job, report *ComplianceReport) string {
	return fmt.Sprintf(
		"The following %s policy scored %.1f%% compliant, graded %s: %s\n\n"+
			"Original policy text:\n%s\n\n"+
			"Rewrite the policy to resolve the critical issues and weaknesses identified, and respond with JSON "+
			"matching: {\"improved_policy\": <string>, \"improvements_made\": [<string>, ...], "+
			"\"estimated_new_compliance\": <0..100>}.",
		job.PolicyType, report.OverallComplianceRatio, report.ComplianceGrade, report.Summary, job.PolicyText,
	)
}

// Analyzer performs the LLM-backed portions of the pipeline (stages 1-3)
// through the provider manager, translating the opaque JSON response into
// the pipeline's typed sub-results.
type Analyzer struct {
	manager *ProviderManager
	prompts PromptBuilder
}

// NewAnalyzer constructs an Analyzer. If prompts is nil, DefaultPromptBuilder
// is used.
func NewAnalyzer(manager *ProviderManager, prompts PromptBuilder) *Analyzer {
	if prompts == nil {
		prompts = DefaultPromptBuilder{}
	}
	return &Analyzer{manager: manager, prompts: prompts}
}

const estimatedTokensPerCall = 2000

type stageOneResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

// RefineMatch runs the LLM-assisted match (stage 1).
func (a *Analyzer) RefineMatch(ctx context.Context, job *Job, verdict MatchVerdict, confidence float64) (MatchVerdict, float64, error) {
	prompt := a.prompts.StageOneMatchPrompt(job, verdict, confidence)
	text, err := a.manager.Call(ctx, prompt, estimatedTokensPerCall)
	if err != nil {
		return verdict, confidence, err
	}

	var resp stageOneResponse
	if err := json.Unmarshal(extractJSON(text), &resp); err != nil {
		return verdict, confidence, &ErrorRecord{Kind: ErrMissingData, Message: fmt.Sprintf("stage 1 response was not valid JSON: %v", err)}
	}
	switch MatchVerdict(resp.Verdict) {
	case VerdictMatch, VerdictMismatch, VerdictUnsure:
		return MatchVerdict(resp.Verdict), resp.Confidence, nil
	default:
		return verdict, confidence, &ErrorRecord{Kind: ErrMissingData, Message: fmt.Sprintf("stage 1 response had invalid verdict %q", resp.Verdict)}
	}
}

// Analyze runs the compliance analysis (stage 2) and MUST populate
// overall_compliance_ratio.
func (a *Analyzer) Analyze(ctx context.Context, job *Job) (*ComplianceReport, error) {
	prompt := a.prompts.ComplianceAnalysisPrompt(job)
	text, err := a.manager.Call(ctx, prompt, estimatedTokensPerCall)
	if err != nil {
		return nil, err
	}

	var report ComplianceReport
	if err := json.Unmarshal(extractJSON(text), &report); err != nil {
		return nil, &ErrorRecord{Kind: ErrMissingData, Message: fmt.Sprintf("compliance analysis response was not valid JSON: %v", err)}
	}
	if report.OverallComplianceRatio < 0 || report.OverallComplianceRatio > 100 {
		return nil, &ErrorRecord{Kind: ErrMissingData, Message: fmt.Sprintf("overall_compliance_ratio %v out of range [0,100]", report.OverallComplianceRatio)}
	}
	return &report, nil
}

// Regenerate runs the policy regeneration stage (stage 3).
func (a *Analyzer) Regenerate(ctx context.Context, job *Job, report *ComplianceReport) (*ImprovedPolicy, error) {
	prompt := a.prompts.PolicyRegenerationPrompt(job, report)
	text, err := a.manager.Call(ctx, prompt, estimatedTokensPerCall)
	if err != nil {
		return nil, err
	}

	var improved ImprovedPolicy
	if err := json.Unmarshal(extractJSON(text), &improved); err != nil {
		return nil, &ErrorRecord{Kind: ErrMissingData, Message: fmt.Sprintf("policy regeneration response was not valid JSON: %v", err)}
	}
	return &improved, nil
}

// extractJSON trims leading/trailing prose an LLM sometimes wraps its JSON
// payload in (code fences, explanatory sentences) by slicing to the
// outermost brace pair. If no braces are found the input is returned
// unchanged and json.Unmarshal will report the parse error.
func extractJSON(text string) []byte {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return []byte(text[start : i+1])
			}
		}
	}
	return []byte(text)
}
