// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verifier provides the feature-verification HTTP service.
//
// The service accepts a zipped codebase plus a feature description,
// locates candidate implementation sites, and then drives a reasoning
// engine through sandboxed tool calls until a validated pass/fail
// verdict.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/agent"
	"github.com/AleutianAI/CodeVerify/services/verifier/config"
	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
	"github.com/AleutianAI/CodeVerify/services/verifier/locator"
	"github.com/AleutianAI/CodeVerify/services/verifier/sandbox"
	"github.com/AleutianAI/CodeVerify/services/verifier/telemetry"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

var (
	// ErrWorkspaceNotFound indicates an unknown workspace ID.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrNoFeature indicates neither the request nor the analyze call
	// supplied a feature description.
	ErrNoFeature = errors.New("no feature description provided")
)

// Service is the verifier service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Each verification session owns
//	its workspace and execution context, so sessions run in parallel.
type Service struct {
	cfg     *config.Config
	client  engine.Client
	locator *locator.Locator
	loop    agent.Loop
	logger  *logging.Logger

	mu         sync.RWMutex
	workspaces map[string]*workspaceRecord
	sessions   map[string]*agent.Session
}

// NewService creates the verifier service.
//
// Inputs:
//
//	cfg - Loaded configuration. Must be non-nil.
//	client - The reasoning-engine client. Must be non-nil.
//	logger - Logger; nil uses logging.Default.
func NewService(cfg *config.Config, client engine.Client, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}

	return &Service{
		cfg:        cfg,
		client:     client,
		locator:    locator.New(client, logger),
		loop:       agent.NewLoop(client, logger),
		logger:     logger.With("component", "verifier"),
		workspaces: make(map[string]*workspaceRecord),
		sessions:   make(map[string]*agent.Session),
	}
}

// Analyze extracts an uploaded archive and locates the described
// feature in it.
//
// Inputs:
//
//	ctx - Request context.
//	archivePath - Path of the uploaded zip on local disk.
//	feature - The feature description.
//
// Outputs:
//
//	*AnalyzeResponse - Workspace reference plus the analysis.
//	error - Extraction, indexing, or locator errors.
func (s *Service) Analyze(ctx context.Context, archivePath, feature string) (*AnalyzeResponse, error) {
	workspaceID := uuid.NewString()
	dir := filepath.Join(config.ExpandRoot(s.cfg.Workspace.Root), workspaceID)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	err := workspace.Extract(archivePath, dir, s.cfg.Workspace.MaxUploadBytes)
	telemetry.RecordUpload(err)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	index, err := workspace.NewIndex(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	analysis, err := s.locator.Analyze(ctx, index, feature)
	telemetry.RecordAnalysis(err)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	record := &workspaceRecord{
		ID:        workspaceID,
		Dir:       dir,
		Feature:   feature,
		Analysis:  analysis,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.workspaces[workspaceID] = record
	s.mu.Unlock()

	s.logger.Info("workspace analyzed",
		"workspace_id", workspaceID,
		"files", len(index.Files()),
		"features", len(analysis.Features))

	return &AnalyzeResponse{
		WorkspaceID: workspaceID,
		Feature:     feature,
		Analysis:    analysis,
		Files:       len(index.Files()),
	}, nil
}

// Verify runs a full verification session against an analyzed
// workspace.
//
// Outputs:
//
//	*VerifyResponse - The session ID and validated outcome.
//	error - ErrWorkspaceNotFound, ErrNoFeature, session construction
//	errors, or agent.ErrEngineUnavailable.
func (s *Service) Verify(ctx context.Context, workspaceID, feature string) (*VerifyResponse, error) {
	s.mu.RLock()
	record, ok := s.workspaces[workspaceID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}

	if feature == "" {
		feature = record.Feature
	}
	if feature == "" {
		return nil, ErrNoFeature
	}

	index, err := workspace.NewIndex(record.Dir)
	if err != nil {
		return nil, err
	}

	box, err := sandbox.New(record.Dir, sandbox.Options{
		NodeRuntime:    s.cfg.Sandbox.NodeRuntime,
		ExecTimeout:    s.cfg.Sandbox.ExecTimeout,
		CommandTimeout: s.cfg.Sandbox.CommandTimeout,
		HTTPTimeout:    s.cfg.Sandbox.HTTPTimeout,
		Logger:         s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	session, err := agent.NewSession(feature, index, box, agent.Budget{
		MaxTurns:            s.cfg.Session.MaxTurns,
		Deadline:            s.cfg.Session.Deadline,
		MaxToolCallsPerTurn: s.cfg.Session.MaxToolCallsPerTurn,
	})
	if err != nil {
		return nil, err
	}
	if record.Analysis != nil {
		session.Seed = record.Analysis.SeedContext()
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	telemetry.RecordSessionStart()
	outcome, err := s.loop.Run(ctx, session)
	s.recordSessionMetrics(session, outcome)
	if err != nil {
		return nil, err
	}

	return &VerifyResponse{
		SessionID: session.ID,
		Outcome:   outcome,
	}, nil
}

// recordSessionMetrics publishes session counters, including fatal
// sessions that produced no outcome.
func (s *Service) recordSessionMetrics(session *agent.Session, outcome *agent.TestOutcome) {
	for _, invocation := range session.Invocations() {
		success := invocation.Result != nil && invocation.Result.Success
		telemetry.RecordToolDispatch(invocation.ToolName, success)
	}

	if outcome == nil {
		outcome = session.Outcome()
	}
	if outcome != nil {
		telemetry.RecordSessionEnd(string(outcome.Reason), outcome.Passed,
			outcome.Turns, outcome.TokensUsed, outcome.Duration)
	}
}

// Session returns a session by ID.
func (s *Service) Session(id string) (*agent.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrSessionNotFound, id)
	}
	return session, nil
}

// Abort cancels a running session.
func (s *Service) Abort(sessionID string) error {
	return s.loop.Abort(sessionID)
}

// Health reports service status for the health endpoints.
func (s *Service) Health() *HealthResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &HealthResponse{
		Status:     "ok",
		Engine:     s.client.Name(),
		Model:      s.client.Model(),
		Workspaces: len(s.workspaces),
		Sessions:   len(s.sessions),
	}
}

// Cleanup removes workspaces older than maxAge from disk and memory.
func (s *Service) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.workspaces {
		if record.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(record.Dir); err != nil {
				s.logger.Warn("workspace cleanup failed", "workspace_id", id, "error", err)
				continue
			}
			delete(s.workspaces, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("workspaces cleaned up", "removed", removed)
	}
	return removed
}
