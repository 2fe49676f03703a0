// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package rulematch

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy_requirement_patterns.yaml
var embeddedRulePatterns []byte

// Verdict is the rule matcher's classification of how well a policy
// document satisfies its declared policy_type's requirement clauses.
type Verdict string

const (
	VerdictMatch    Verdict = "match"
	VerdictMismatch Verdict = "mismatch"
	VerdictUnsure   Verdict = "unsure"
)

// MatchResult is the outcome of one rule-based match attempt.
type MatchResult struct {
	Verdict    Verdict         `json:"verdict"`
	Confidence float64         `json:"confidence"`
	Findings   []ClauseFinding `json:"findings"`
}

// Matcher scores a policy document against the required-clause patterns for
// its declared policy_type, producing a confidence in [0,1] that stage 0 of
// the pipeline uses to set match_verdict and decide whether stage 1 runs.
type Matcher struct {
	rules *RuleFile
}

// NewMatcher loads and compiles the embedded pattern file.
func NewMatcher() (*Matcher, error) {
	var file RuleFile
	if err := yaml.Unmarshal(embeddedRulePatterns, &file); err != nil {
		return nil, fmt.Errorf("unmarshal embedded rule patterns: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, err
	}
	file.SortByClauseCount()
	return &Matcher{rules: &file}, nil
}

// Match scores normalizedText (already casefolded/whitespace-collapsed by
// the caller's fingerprinter) against policyType's required clauses and red
// flags. An unknown policyType always yields VerdictUnsure with confidence
// 0.50, the midpoint of the uncertainty band, so stage 1 can adjudicate.
func (m *Matcher) Match(policyType, normalizedText string) MatchResult {
	rules := m.rules.ByPolicyType(policyType)
	if rules == nil || len(rules.RequiredClauses) == 0 {
		return MatchResult{Verdict: VerdictUnsure, Confidence: 0.50}
	}

	var findings []ClauseFinding
	var earnedWeight, totalWeight float64

	for _, p := range rules.RequiredClauses {
		totalWeight += p.Confidence.weight()
		loc := p.compiledPattern.FindStringIndex(normalizedText)
		f := ClauseFinding{
			PolicyType:  policyType,
			PatternId:   p.Id,
			Description: p.Description,
			Confidence:  p.Confidence,
			Matched:     loc != nil,
		}
		if loc != nil {
			earnedWeight += p.Confidence.weight()
			f.MatchedContent = strings.TrimSpace(normalizedText[loc[0]:loc[1]])
		}
		findings = append(findings, f)
	}

	var penalty float64
	for _, p := range rules.RedFlags {
		loc := p.compiledPattern.FindStringIndex(normalizedText)
		f := ClauseFinding{
			PolicyType:  policyType,
			PatternId:   p.Id,
			Description: p.Description,
			Confidence:  p.Confidence,
			Matched:     loc != nil,
			IsRedFlag:   true,
		}
		if loc != nil {
			penalty += p.Confidence.weight()
			f.MatchedContent = strings.TrimSpace(normalizedText[loc[0]:loc[1]])
		}
		findings = append(findings, f)
	}

	confidence := 0.50
	if totalWeight > 0 {
		confidence = earnedWeight / totalWeight
	}
	confidence -= penalty
	confidence = clamp01(confidence)

	return MatchResult{
		Verdict:    verdictFromConfidence(confidence),
		Confidence: confidence,
		Findings:   findings,
	}
}

func verdictFromConfidence(confidence float64) Verdict {
	switch {
	case confidence >= 0.70:
		return VerdictMatch
	case confidence <= 0.30:
		return VerdictMismatch
	default:
		return VerdictUnsure
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// KnownPolicyTypes lists every policy_type the embedded rule file declares.
func (m *Matcher) KnownPolicyTypes() []string {
	out := make([]string, 0, len(m.rules.PolicyTypes))
	for _, pt := range m.rules.PolicyTypes {
		out = append(out, pt.PolicyType)
	}
	return out
}
