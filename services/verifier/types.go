// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verifier

import (
	"time"

	"github.com/AleutianAI/CodeVerify/services/verifier/agent"
	"github.com/AleutianAI/CodeVerify/services/verifier/locator"
)

// AnalyzeResponse is returned by POST /v1/verify/analyze.
type AnalyzeResponse struct {
	// WorkspaceID references the extracted codebase for follow-up
	// verification calls.
	WorkspaceID string `json:"workspace_id"`

	// Feature echoes the analyzed feature description.
	Feature string `json:"feature"`

	// Analysis is the locator's result.
	Analysis *locator.Analysis `json:"analysis"`

	// Files is the number of indexed files.
	Files int `json:"files"`
}

// VerifyRequest is the body of POST /v1/verify/generate-tests.
type VerifyRequest struct {
	// WorkspaceID references a previously analyzed workspace.
	WorkspaceID string `json:"workspace_id" binding:"required"`

	// Feature overrides the feature description from the analyze call.
	Feature string `json:"feature,omitempty"`
}

// VerifyResponse is returned by POST /v1/verify/generate-tests.
type VerifyResponse struct {
	// SessionID identifies the orchestration session.
	SessionID string `json:"session_id"`

	// Outcome is the validated verification result.
	Outcome *agent.TestOutcome `json:"outcome"`
}

// SessionResponse is returned by GET /v1/verify/session/:id.
type SessionResponse struct {
	SessionID string `json:"session_id"`

	// State is the session's current state machine state.
	State string `json:"state"`

	// Metrics snapshots the session counters.
	Metrics agent.SessionMetrics `json:"metrics"`

	// Outcome is set once the session has terminated.
	Outcome *agent.TestOutcome `json:"outcome,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status     string `json:"status"`
	Engine     string `json:"engine"`
	Model      string `json:"model"`
	Workspaces int    `json:"workspaces"`
	Sessions   int    `json:"sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// workspaceRecord is one extracted upload and its analysis.
type workspaceRecord struct {
	ID        string
	Dir       string
	Feature   string
	Analysis  *locator.Analysis
	CreatedAt time.Time
}
