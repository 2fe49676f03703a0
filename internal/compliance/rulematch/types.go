// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Package rulematch implements the rule-based policy matcher: a YAML-driven
// table of regex requirement clauses per policy type, scored by confidence
// level, that stage 0 of the pipeline consults before any LLM call.
package rulematch

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ConfidenceLevel is the strength a pattern author assigns to one clause
// pattern matching.
type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// weight converts a confidence level to the numeric score contribution used
// when combining multiple clause matches into one match_verdict confidence.
func (c ConfidenceLevel) weight() float64 {
	switch c {
	case High:
		return 0.40
	case Medium:
		return 0.25
	case Low:
		return 0.10
	default:
		return 0.0
	}
}

// RuleFile is the top-level shape of the embedded pattern YAML.
type RuleFile struct {
	PolicyTypes []PolicyTypeRules `yaml:"policy_types"`
}

// PolicyTypeRules groups the required and disqualifying clause patterns for
// one policy_type value (e.g. "returns", "privacy", "shipping").
type PolicyTypeRules struct {
	PolicyType      string    `yaml:"policy_type"`
	Description     string    `yaml:"description"`
	RequiredClauses []Pattern `yaml:"required_clauses"`
	RedFlags        []Pattern `yaml:"red_flags"`
}

// Pattern is one regex clause pattern with its identity and scoring weight.
type Pattern struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for confidence: %q", incoming)
	}
}

// CompileRegexes compiles every pattern's regex once, in place.
func (f *RuleFile) CompileRegexes() error {
	for i := range f.PolicyTypes {
		for j := range f.PolicyTypes[i].RequiredClauses {
			p := &f.PolicyTypes[i].RequiredClauses[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("compile required_clause regex %q: %w", p.Regex, err)
			}
			p.compiledPattern = re
		}
		for j := range f.PolicyTypes[i].RedFlags {
			p := &f.PolicyTypes[i].RedFlags[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("compile red_flag regex %q: %w", p.Regex, err)
			}
			p.compiledPattern = re
		}
	}
	return nil
}

// ByPolicyType returns the rule set whose policy_type matches, or nil.
func (f *RuleFile) ByPolicyType(policyType string) *PolicyTypeRules {
	for i := range f.PolicyTypes {
		if f.PolicyTypes[i].PolicyType == policyType {
			return &f.PolicyTypes[i]
		}
	}
	return nil
}

// SortByClauseCount orders policy types with the most demanding rule sets
// first; purely cosmetic for listing, mirrored from the teacher's
// priority-sort idiom.
func (f *RuleFile) SortByClauseCount() {
	sort.Slice(f.PolicyTypes, func(i, j int) bool {
		return len(f.PolicyTypes[i].RequiredClauses) > len(f.PolicyTypes[j].RequiredClauses)
	})
}

// ClauseFinding records one matched or missing clause pattern against a
// policy document, for the detailed scan used in diagnostics.
type ClauseFinding struct {
	PolicyType     string          `json:"policy_type"`
	PatternId      string          `json:"pattern_id"`
	Description    string          `json:"description"`
	Confidence     ConfidenceLevel `json:"confidence"`
	Matched        bool            `json:"matched"`
	MatchedContent string          `json:"matched_content,omitempty"`
	LineNumber     int             `json:"line_number,omitempty"`
	IsRedFlag      bool            `json:"is_red_flag"`
}
