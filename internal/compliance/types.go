// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Package compliance implements the asynchronous policy compliance analysis
// engine: fingerprinting, reliability stores, the staged pipeline, the job
// supervisor, and the event stream hub.
package compliance

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// ErrorKind is the fixed error taxonomy surfaced to callers.
type ErrorKind string

const (
	ErrValidation     ErrorKind = "validation"
	ErrQuotaExceeded  ErrorKind = "quota_exceeded"
	ErrTimeout        ErrorKind = "timeout"
	ErrAuthentication ErrorKind = "authentication"
	ErrServerError    ErrorKind = "server_error"
	ErrNetwork        ErrorKind = "network"
	ErrMissingData    ErrorKind = "missing_data"
	ErrUnknown        ErrorKind = "unknown"
	ErrCancelled      ErrorKind = "cancelled"
)

// Retryable reports whether the retry policy treats this error kind as
// transient. quota_exceeded/authentication/validation/cancelled are not.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrTimeout, ErrServerError, ErrNetwork:
		return true
	default:
		return false
	}
}

// ErrorRecord is the structured error surfaced through the snapshot endpoint
// and the event stream.
type ErrorRecord struct {
	Kind            ErrorKind      `json:"kind"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	UserAction      string         `json:"user_action,omitempty"`
	CompletedStages []StageResult  `json:"completed_stages,omitempty"`
	FailedStage     string         `json:"failed_stage,omitempty"`
}

func (e *ErrorRecord) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// MatchVerdict is the outcome of rule-based or LLM-assisted policy matching.
type MatchVerdict string

const (
	VerdictMatch    MatchVerdict = "match"
	VerdictMismatch MatchVerdict = "mismatch"
	VerdictUnsure   MatchVerdict = "unsure"
)

// ReportEntry is one bounded-shape finding within a ComplianceReport list.
type ReportEntry struct {
	Phrase     string `json:"phrase"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// ComplianceReport is produced by stage 2.
type ComplianceReport struct {
	OverallComplianceRatio float64       `json:"overall_compliance_ratio"`
	ComplianceGrade        string        `json:"compliance_grade"`
	Summary                string        `json:"summary"`
	CriticalIssues         []ReportEntry `json:"critical_issues"`
	Weaknesses             []ReportEntry `json:"weaknesses"`
	Strengths              []ReportEntry `json:"strengths"`
	Ambiguities            []ReportEntry `json:"ambiguities"`
	Recommendations        []ReportEntry `json:"recommendations"`
}

// ImprovedPolicy is produced by stage 3 only when the compliance ratio is
// below the regeneration threshold.
type ImprovedPolicy struct {
	ImprovedPolicyText     string   `json:"improved_policy"`
	ImprovementsMade       []string `json:"improvements_made"`
	EstimatedNewCompliance float64  `json:"estimated_new_compliance"`
}

// AnalysisResult is the finalized, terminal payload of a completed job.
type AnalysisResult struct {
	Success          bool             `json:"success"`
	FromCache        bool             `json:"from_cache,omitempty"`
	ServedFromCache  string           `json:"served_from_fallback,omitempty"`
	MatchVerdict     MatchVerdict     `json:"match_verdict"`
	MatchConfidence  float64          `json:"match_confidence"`
	ComplianceReport *ComplianceReport `json:"compliance_report,omitempty"`
	ImprovedPolicy   *ImprovedPolicy   `json:"improved_policy,omitempty"`
}

// Job is the durable record of one analysis request.
type Job struct {
	JobID string `json:"job_id"`

	ShopName           string `json:"shop_name"`
	ShopSpecialization string `json:"shop_specialization"`
	PolicyType         string `json:"policy_type"`
	PolicyText         string `json:"policy_text"`

	IdempotencyKey string `json:"idempotency_key"`
	ContentHash    string `json:"content_hash"`

	Status          JobStatus      `json:"status"`
	CurrentStage    int            `json:"current_stage"`
	TotalStages     int            `json:"total_stages"`
	ProgressMessage string         `json:"progress_message"`
	CompletedStages []StageResult  `json:"completed_stages"`
	Result          *AnalysisResult `json:"result,omitempty"`
	ErrorRecord     *ErrorRecord   `json:"error,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitInput is the caller-supplied payload for a new analysis.
type SubmitInput struct {
	ShopName           string `json:"shop_name" validate:"required,min=2"`
	ShopSpecialization string `json:"shop_specialization" validate:"required,min=2"`
	PolicyType         string `json:"policy_type" validate:"required"`
	PolicyText         string `json:"policy_text" validate:"required"`
}

// StageOutcome is the result classification of one stage execution.
type StageOutcome string

const (
	StageOK      StageOutcome = "ok"
	StageSkipped StageOutcome = "skipped"
	StageFailed  StageOutcome = "failed"
)

// StageResult records one stage's execution within a job's context. It never
// leaves the job.
type StageResult struct {
	Stage    string        `json:"stage"`
	Outcome  StageOutcome  `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// ProviderHealth tracks one LLM provider's failover state.
type ProviderHealth struct {
	ProviderID          string     `json:"provider_id"`
	IsPrimary           bool       `json:"is_primary"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BlacklistedUntil    *time.Time `json:"blacklisted_until,omitempty"`
	SuccessCount        int64      `json:"success_count"`
	FailureCount        int64      `json:"failure_count"`
}

// PeriodType distinguishes the two quota accounting windows.
type PeriodType string

const (
	PeriodDaily  PeriodType = "daily"
	PeriodHourly PeriodType = "hourly"
)

// QuotaCounter is keyed by (provider, period type, period key).
type QuotaCounter struct {
	ProviderID string     `json:"provider_id"`
	PeriodType PeriodType `json:"period_type"`
	PeriodKey  string     `json:"period_key"`
	Tokens     int64      `json:"tokens"`
	Requests   int64      `json:"requests"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// EventKind distinguishes the three event types a job stream carries.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// ProgressPayload accompanies a progress event.
type ProgressPayload struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Status   string `json:"status"`
	ShopName string `json:"shop_name,omitempty"`
}

// FailedPayload accompanies a failed terminal event.
type FailedPayload struct {
	ErrorKind       ErrorKind `json:"error_kind"`
	Message         string    `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	CompletedStages []StageResult  `json:"completed_stages,omitempty"`
	FailedStage     string    `json:"failed_stage,omitempty"`
}

// Event is a transient per-job stream record.
type Event struct {
	JobID     string    `json:"job_id"`
	Seq       int64     `json:"seq"`
	Kind      EventKind `json:"kind"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
