// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

// Loop drives verification sessions.
type Loop interface {
	// Run executes a session to termination and returns its validated
	// outcome.
	//
	// Inputs:
	//   ctx - Caller context; cancellation aborts the session.
	//   session - A session in StateInit.
	//
	// Outputs:
	//   *TestOutcome - The validated outcome, nil on fatal errors.
	//   error - ErrEngineUnavailable when the engine stayed down,
	//   ErrSessionInProgress / ErrSessionTerminated for misuse. Budget
	//   exhaustion and failed verdicts are outcomes, not errors.
	Run(ctx context.Context, session *Session) (*TestOutcome, error)

	// Abort cancels a running session. The session ends in
	// StateTerminatedFailure with a cancellation reason.
	Abort(sessionID string) error
}

// DefaultLoop implements Loop.
//
// Description:
//
//	One engine client and validator are shared across sessions; all
//	per-session state lives on the Session, so sessions run in
//	parallel without coordination. Within a session, tool calls are
//	dispatched strictly sequentially in the order the engine gave
//	them, because later calls may depend on the side effects of
//	earlier ones.
//
// Thread Safety:
//
//	DefaultLoop is safe for concurrent use with different sessions.
type DefaultLoop struct {
	client    engine.Client
	machine   *StateMachine
	validator *Validator
	logger    *logging.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// LoopOption configures a DefaultLoop.
type LoopOption func(*DefaultLoop)

// WithStateMachine overrides the state machine.
func WithStateMachine(machine *StateMachine) LoopOption {
	return func(l *DefaultLoop) {
		l.machine = machine
	}
}

// WithValidator overrides the result validator.
func WithValidator(validator *Validator) LoopOption {
	return func(l *DefaultLoop) {
		l.validator = validator
	}
}

// NewLoop creates a session loop.
//
// Inputs:
//
//	client - The reasoning-engine client. Must be non-nil.
//	logger - Logger; nil uses logging.Default.
//	opts - Optional configuration.
func NewLoop(client engine.Client, logger *logging.Logger, opts ...LoopOption) *DefaultLoop {
	if logger == nil {
		logger = logging.Default()
	}

	l := &DefaultLoop{
		client:    client,
		machine:   DefaultStateMachine,
		validator: NewValidator(logger),
		logger:    logger.With("component", "loop"),
		running:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run implements Loop.
func (l *DefaultLoop) Run(ctx context.Context, session *Session) (*TestOutcome, error) {
	if session.IsTerminated() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminated, session.ID)
	}
	if !session.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrSessionInProgress, session.ID)
	}
	defer session.Release()

	// The deadline is the session's own budget, independent of any
	// outer request timeout the caller carries.
	runCtx, cancel := context.WithTimeout(ctx, session.Budget.Deadline)
	defer cancel()
	l.register(session.ID, cancel)
	defer l.unregister(session.ID)

	logger := l.logger.With("session_id", session.ID)
	logger.Info("session starting",
		"max_turns", session.Budget.MaxTurns,
		"deadline", session.Budget.Deadline)

	registry := tools.NewRegistry()
	tools.RegisterVerifierTools(registry, session.Runner)
	dispatcher := tools.NewDispatcher(registry, logger)

	if err := l.seed(runCtx, session); err != nil {
		return nil, err
	}

	outcome, err := l.converse(runCtx, ctx, session, dispatcher, registry, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("session terminated",
		"state", session.State(),
		"passed", outcome.Passed,
		"reason", outcome.Reason,
		"turns", outcome.Turns)
	return outcome, nil
}

// seed writes the conftest, builds the opening prompts, and moves the
// session into AWAITING_ENGINE.
func (l *DefaultLoop) seed(ctx context.Context, session *Session) error {
	if err := EnsureConftest(ctx, session.Runner); err != nil {
		// Non-fatal: the engine is told to set sys.path in the test
		// file as well.
		l.logger.Warn("conftest seeding failed", "session_id", session.ID, "error", err)
	}

	session.AppendMessage(engine.Message{
		Role:    "user",
		Content: BuildUserPrompt(ctx, session),
	})
	return l.machine.Transition(session, StateAwaitingEngine)
}

// converse alternates engine calls and tool dispatches until a
// terminal condition.
//
// callerCtx lets budget-deadline expiry be told apart from a caller
// abort: both surface as runCtx errors.
func (l *DefaultLoop) converse(
	runCtx, callerCtx context.Context,
	session *Session,
	dispatcher *tools.Dispatcher,
	registry *tools.Registry,
	logger *logging.Logger,
) (*TestOutcome, error) {
	systemPrompt := BuildSystemPrompt(session.Index)
	definitions := registry.GetDefinitions()

	for {
		// Budgets are checked before every engine call, never after.
		if session.Metrics().EngineCalls >= session.Budget.MaxTurns {
			return l.terminate(session, StateTerminatedBudget, ReasonBudgetExceeded, logger), nil
		}
		if err := runCtx.Err(); err != nil {
			return l.terminateOnContext(callerCtx, session, logger), nil
		}

		response, err := l.client.Complete(runCtx, &engine.Request{
			SystemPrompt: systemPrompt,
			Messages:     session.Messages(),
			Tools:        definitions,
		})
		if err != nil {
			if runCtx.Err() != nil {
				return l.terminateOnContext(callerCtx, session, logger), nil
			}
			// Anything else is a transport failure: the client has
			// already exhausted its retries.
			l.terminate(session, StateTerminatedFatal, ReasonEngineUnavailable, logger)
			if errors.Is(err, ErrEngineUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		session.RecordEngineResponse(response)

		if !response.HasToolCalls() {
			// No tools, no verdict: derive what we can and stop.
			if source := extractFencedCode(response.Content); source != "" {
				session.OfferTestSource(source)
			}
			return l.terminate(session, StateTerminatedFailure, ReasonNoVerdict, logger), nil
		}

		if err := l.machine.Transition(session, StateDispatching); err != nil {
			return nil, err
		}

		verdictIssued := l.dispatchTurn(runCtx, session, dispatcher, response.ToolCalls, logger)
		if verdictIssued {
			return l.terminateOnVerdict(session, logger), nil
		}
		if err := runCtx.Err(); err != nil {
			return l.terminateOnContext(callerCtx, session, logger), nil
		}

		if err := l.machine.Transition(session, StateAwaitingEngine); err != nil {
			return nil, err
		}
	}
}

// dispatchTurn executes one turn's tool calls sequentially, in the
// order the engine gave them. Returns true when a verdict was
// recorded.
func (l *DefaultLoop) dispatchTurn(
	ctx context.Context,
	session *Session,
	dispatcher *tools.Dispatcher,
	calls []engine.ToolCall,
	logger *logging.Logger,
) bool {
	verdictIssued := false

	for i, call := range calls {
		// Every tool call must be answered, including the ones the
		// per-turn cap refuses, or the conversation becomes invalid.
		if i >= session.Budget.MaxToolCallsPerTurn {
			session.RecordInvocation(call.ID, refusedInvocation(call,
				fmt.Sprintf("Tool call refused: per-turn limit of %d exceeded", session.Budget.MaxToolCallsPerTurn)))
			continue
		}
		if ctx.Err() != nil {
			session.RecordInvocation(call.ID, refusedInvocation(call, "Tool call skipped: session is terminating"))
			continue
		}

		params := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
				session.RecordInvocation(call.ID, refusedInvocation(call,
					fmt.Sprintf("Invalid tool arguments: %v", err)))
				continue
			}
		}

		invocation := &tools.Invocation{ToolName: call.Name, Parameters: params}
		result := dispatcher.Dispatch(ctx, invocation)
		session.RecordInvocation(call.ID, invocation)

		l.collectTestSource(session, call.Name, params)

		if call.Name == "validate_test_result" && result.Success {
			if verdict, ok := result.Data.(*tools.Verdict); ok {
				session.SetVerdict(verdict)
				verdictIssued = true
			}
		}

		logger.Debug("tool dispatched",
			"tool", call.Name,
			"success", result.Success,
			"duration", result.Duration)
	}

	return verdictIssued
}

// collectTestSource records test code as it is written so the outcome
// can return it even when a later step fails.
func (l *DefaultLoop) collectTestSource(session *Session, toolName string, params map[string]any) {
	if toolName != "write_file" {
		return
	}
	path, _ := params["file_path"].(string)
	content, _ := params["content"].(string)
	if content != "" && looksLikeTest(path, content) {
		session.OfferTestSource(content)
	}
}

// terminate moves the session to a terminal state and finalizes the
// outcome through the validator.
func (l *DefaultLoop) terminate(session *Session, to SessionState, reason TerminalReason, logger *logging.Logger) *TestOutcome {
	if err := l.machine.Transition(session, to); err != nil {
		logger.Error("terminal transition rejected", "target", to, "error", err)
	}
	outcome := l.validator.Finalize(session, reason)
	session.SetOutcome(outcome)
	return outcome
}

// terminateOnVerdict validates the engine's verdict and picks the
// terminal state from the validated result, so an overridden pass
// lands in TERMINATED_FAILURE.
func (l *DefaultLoop) terminateOnVerdict(session *Session, logger *logging.Logger) *TestOutcome {
	outcome := l.validator.Finalize(session, ReasonVerdict)
	session.SetOutcome(outcome)

	to := StateTerminatedFailure
	if outcome.Passed {
		to = StateTerminatedSuccess
	}
	if err := l.machine.Transition(session, to); err != nil {
		logger.Error("terminal transition rejected", "target", to, "error", err)
	}
	return outcome
}

// terminateOnContext ends a session whose context expired,
// distinguishing the session deadline from a caller abort.
func (l *DefaultLoop) terminateOnContext(callerCtx context.Context, session *Session, logger *logging.Logger) *TestOutcome {
	if callerCtx.Err() != nil {
		return l.terminate(session, StateTerminatedFailure, ReasonCanceled, logger)
	}
	return l.terminate(session, StateTerminatedBudget, ReasonDeadlineExceeded, logger)
}

// Abort implements Loop.
func (l *DefaultLoop) Abort(sessionID string) error {
	l.mu.Lock()
	cancel, ok := l.running[sessionID]
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	cancel()
	return nil
}

func (l *DefaultLoop) register(sessionID string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running[sessionID] = cancel
}

func (l *DefaultLoop) unregister(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, sessionID)
}

// refusedInvocation builds the failed record for a tool call that was
// never dispatched.
func refusedInvocation(call engine.ToolCall, message string) *tools.Invocation {
	now := time.Now()
	return &tools.Invocation{
		ID:          call.ID,
		ToolName:    call.Name,
		StartedAt:   now,
		CompletedAt: now,
		Result: &tools.Result{
			Success: false,
			Error:   message,
		},
	}
}

var testFilePattern = regexp.MustCompile(`(^|/)(test_[^/]+|[^/]+[._]test\.[a-z]+|[^/]+\.spec\.[a-z]+)$`)

// looksLikeTest reports whether a written file is plausibly the
// generated test: a test-style filename, or test-framework markers in
// the content.
func looksLikeTest(path, content string) bool {
	if testFilePattern.MatchString(path) {
		return true
	}
	for _, marker := range []string{"import pytest", "def test_", "describe(", "it(", "test("} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

var fencedCodePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n(.*?)```")

// extractFencedCode pulls the largest fenced code block out of
// assistant text. Fallback test source when the engine never called
// write_file.
func extractFencedCode(content string) string {
	best := ""
	for _, m := range fencedCodePattern.FindAllStringSubmatch(content, -1) {
		if len(m[1]) > len(best) {
			best = m[1]
		}
	}
	return strings.TrimSpace(best)
}
