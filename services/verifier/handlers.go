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
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/agent"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

// Handlers contains the HTTP handlers for the verifier service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandlers creates handlers for the verifier service.
func NewHandlers(svc *Service, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{svc: svc, logger: logger.With("component", "handlers")}
}

// HandleAnalyze handles POST /v1/verify/analyze.
//
// Description:
//
//	Accepts a multipart upload: "file" (a zip of the codebase) and
//	"feature" (the feature description). Extracts the archive into a
//	fresh workspace and runs the feature locator over it.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: missing file/feature, bad or oversized archive
//	502 Bad Gateway: reasoning engine unavailable
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleAnalyze")

	feature := strings.TrimSpace(c.PostForm("feature"))
	if feature == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Feature description is required",
			Code:  "EMPTY_FEATURE",
		})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		logger.Warn("missing upload", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "A zip archive is required in the 'file' field",
			Code:  "MISSING_FILE",
		})
		return
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".zip") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Only .zip archives are supported",
			Code:  "UNSUPPORTED_ARCHIVE",
		})
		return
	}

	staged := filepath.Join(os.TempDir(), "codeverify-upload-"+uuid.NewString()+".zip")
	if err := c.SaveUploadedFile(file, staged); err != nil {
		logger.Error("failed to stage upload", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to store the uploaded archive",
			Code:  "UPLOAD_FAILED",
		})
		return
	}
	defer os.Remove(staged)

	logger.Info("analyzing upload", "filename", file.Filename, "size", file.Size)

	response, err := h.svc.Analyze(c.Request.Context(), staged, feature)
	if err != nil {
		status, code := http.StatusInternalServerError, "ANALYZE_FAILED"
		switch {
		case errors.Is(err, workspace.ErrBadArchive),
			errors.Is(err, workspace.ErrUnsafeArchivePath):
			status, code = http.StatusBadRequest, "BAD_ARCHIVE"
		case errors.Is(err, workspace.ErrArchiveTooLarge):
			status, code = http.StatusRequestEntityTooLarge, "ARCHIVE_TOO_LARGE"
		case errors.Is(err, agent.ErrEngineUnavailable):
			status, code = http.StatusBadGateway, "ENGINE_UNAVAILABLE"
		}
		logger.Error("analysis failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, response)
}

// HandleGenerateTests handles POST /v1/verify/generate-tests.
//
// Description:
//
//	Runs a full verification session against a previously analyzed
//	workspace: the orchestration loop drives the engine through
//	sandboxed tool calls until a validated verdict or budget
//	exhaustion.
//
// Response:
//
//	200 OK: VerifyResponse (outcome may still be passed=false)
//	400 Bad Request: validation error
//	404 Not Found: unknown workspace
//	409 Conflict: session already running
//	502 Bad Gateway: reasoning engine unavailable
func (h *Handlers) HandleGenerateTests(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGenerateTests")

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("starting verification", "workspace_id", req.WorkspaceID)

	response, err := h.svc.Verify(c.Request.Context(), req.WorkspaceID, req.Feature)
	if err != nil {
		status, code := http.StatusInternalServerError, "VERIFY_FAILED"
		switch {
		case errors.Is(err, ErrWorkspaceNotFound):
			status, code = http.StatusNotFound, "WORKSPACE_NOT_FOUND"
		case errors.Is(err, ErrNoFeature), errors.Is(err, agent.ErrInvalidSession):
			status, code = http.StatusBadRequest, "INVALID_REQUEST"
		case errors.Is(err, agent.ErrSessionInProgress):
			status, code = http.StatusConflict, "SESSION_IN_PROGRESS"
		case errors.Is(err, agent.ErrEngineUnavailable):
			// Engine outage is a distinct upstream error, never a
			// failed-test verdict.
			status, code = http.StatusBadGateway, "ENGINE_UNAVAILABLE"
		}
		logger.Error("verification failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("verification finished",
		"session_id", response.SessionID,
		"passed", response.Outcome.Passed,
		"reason", response.Outcome.Reason)
	c.JSON(http.StatusOK, response)
}

// HandleSession handles GET /v1/verify/session/:id.
func (h *Handlers) HandleSession(c *gin.Context) {
	session, err := h.svc.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		SessionID: session.ID,
		State:     session.State().String(),
		Metrics:   session.Metrics(),
		Outcome:   session.Outcome(),
	})
}

// HandleAbort handles POST /v1/verify/session/:id/abort.
func (h *Handlers) HandleAbort(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.svc.Abort(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	h.logger.Info("session abort requested", "session_id", sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "aborting", "session_id": sessionID})
}

// HandleHealth handles GET /v1/verify/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// HandleReady handles GET /v1/verify/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	health := h.svc.Health()
	if health.Model == "" {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Engine is not configured",
			Code:  "NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, health)
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
