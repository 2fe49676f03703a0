// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package httpapi

import "github.com/shopcompliance/engine/internal/compliance"

// SubmitRequest is the body of the "submit analysis" and "force new
// analysis" operations.
type SubmitRequest struct {
	ShopName           string `json:"shop_name" binding:"required,min=2"`
	ShopSpecialization string `json:"shop_specialization" binding:"required,min=2"`
	PolicyType         string `json:"policy_type" binding:"required"`
	PolicyText         string `json:"policy_text" binding:"required"`
}

func (r SubmitRequest) toInput() compliance.SubmitInput {
	return compliance.SubmitInput{
		ShopName:           r.ShopName,
		ShopSpecialization: r.ShopSpecialization,
		PolicyType:         r.PolicyType,
		PolicyText:         r.PolicyText,
	}
}

// SubmitResponse covers both response variants named in the external
// interface: the immediate cache-hit shape and the pending shape.
type SubmitResponse struct {
	Status         string                       `json:"status"`
	FromCache      bool                         `json:"from_cache,omitempty"`
	Result         *compliance.AnalysisResult   `json:"result,omitempty"`
	TaskID         string                       `json:"task_id,omitempty"`
	IdempotencyKey string                       `json:"idempotency_key,omitempty"`
}

func newSubmitResponse(res *compliance.SubmitResult) SubmitResponse {
	if res.FromCache {
		return SubmitResponse{Status: "completed", FromCache: true, Result: res.Result}
	}
	return SubmitResponse{Status: "pending", TaskID: res.JobID, IdempotencyKey: res.IdempotencyKey}
}

// StatusResponse is the body of the "get task status" operation.
type StatusResponse struct {
	Status   compliance.JobStatus         `json:"status"`
	Progress *ProgressDTO                 `json:"progress,omitempty"`
	Result   *compliance.AnalysisResult   `json:"result,omitempty"`
	Error    *compliance.ErrorRecord      `json:"error,omitempty"`
}

// ProgressDTO mirrors a job's current stage progress.
type ProgressDTO struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

func newStatusResponse(job *compliance.Job) StatusResponse {
	resp := StatusResponse{Status: job.Status}
	if job.Status == compliance.StatusRunning || job.Status == compliance.StatusPending {
		resp.Progress = &ProgressDTO{Current: job.CurrentStage, Total: job.TotalStages, Message: job.ProgressMessage}
	}
	if job.Status == compliance.StatusCompleted {
		resp.Result = job.Result
	}
	if job.Status == compliance.StatusFailed {
		resp.Error = job.ErrorRecord
	}
	return resp
}

// HealthResponse is the body of the "health" operation.
type HealthResponse struct {
	Status compliance.HealthStatus `json:"status"`
}

// ErrorResponse is the body written for any handler-level error. Kind holds
// one of the engine's fixed error taxonomy values for engine-originated
// failures, or an httpapi-local value (e.g. "rate_limited", "not_found") for
// failures the engine never sees.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
