// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the orchestration loop that drives a
// reasoning engine through sandboxed tool calls until a verdict.
//
// A session walks an explicit state machine: INIT seeds the
// conversation, AWAITING_ENGINE and DISPATCHING alternate while the
// engine requests tools, and one of the TERMINATED_* states ends the
// run. The result validator cross-checks the engine's self-reported
// verdict against the recorded execution evidence before anything is
// returned to the caller.
package agent

import (
	"fmt"
	"time"

	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

// SessionState represents a state in the session state machine.
type SessionState string

const (
	// StateInit is the initial state before the conversation is seeded.
	StateInit SessionState = "INIT"

	// StateAwaitingEngine means a reasoning-engine call is in flight or
	// about to be issued.
	StateAwaitingEngine SessionState = "AWAITING_ENGINE"

	// StateDispatching means requested tool calls are being executed
	// sequentially.
	StateDispatching SessionState = "DISPATCHING"

	// StateTerminatedSuccess means the validated verdict was pass.
	StateTerminatedSuccess SessionState = "TERMINATED_SUCCESS"

	// StateTerminatedFailure means the validated verdict was fail, the
	// engine produced no verdict, or the caller canceled.
	StateTerminatedFailure SessionState = "TERMINATED_FAILURE"

	// StateTerminatedBudget means the turn or wall-clock budget ran out.
	StateTerminatedBudget SessionState = "TERMINATED_BUDGET_EXCEEDED"

	// StateTerminatedFatal means the reasoning engine stayed
	// unreachable after retries.
	StateTerminatedFatal SessionState = "TERMINATED_FATAL"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// IsTerminal returns true if the state ends a session.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateTerminatedSuccess, StateTerminatedFailure,
		StateTerminatedBudget, StateTerminatedFatal:
		return true
	default:
		return false
	}
}

// IsActive returns true if the session is still processing.
func (s SessionState) IsActive() bool {
	switch s {
	case StateAwaitingEngine, StateDispatching:
		return true
	default:
		return false
	}
}

// AllStates returns all defined session states.
func AllStates() []SessionState {
	return []SessionState{
		StateInit,
		StateAwaitingEngine,
		StateDispatching,
		StateTerminatedSuccess,
		StateTerminatedFailure,
		StateTerminatedBudget,
		StateTerminatedFatal,
	}
}

// TerminalReason explains why a session ended.
type TerminalReason string

const (
	// ReasonVerdict means the engine issued validate_test_result and
	// the validator accepted or overrode it.
	ReasonVerdict TerminalReason = "verdict"

	// ReasonNoVerdict means the engine stopped calling tools without
	// ever issuing a verdict.
	ReasonNoVerdict TerminalReason = "no_verdict"

	// ReasonBudgetExceeded means the turn budget ran out.
	ReasonBudgetExceeded TerminalReason = "budget_exceeded"

	// ReasonDeadlineExceeded means the wall-clock budget ran out.
	ReasonDeadlineExceeded TerminalReason = "deadline_exceeded"

	// ReasonCanceled means the caller aborted the session.
	ReasonCanceled TerminalReason = "canceled"

	// ReasonEngineUnavailable means the engine transport failed after
	// retries.
	ReasonEngineUnavailable TerminalReason = "engine_unavailable"
)

// TranscriptEntry records one event in the session transcript.
//
// The transcript is the session's audit log: engine responses, tool
// dispatches, and state transitions all land here in order.
type TranscriptEntry struct {
	// Turn is the engine-call turn this entry belongs to (1-based).
	Turn int `json:"turn"`

	// Type is "engine_response", "tool_call", or "transition".
	Type string `json:"type"`

	// State is the session state when the entry was recorded.
	State SessionState `json:"state"`

	// Content is the engine text or a short event description.
	Content string `json:"content,omitempty"`

	// ToolName and Invocation are set for tool_call entries.
	ToolName   string            `json:"tool_name,omitempty"`
	Invocation *tools.Invocation `json:"invocation,omitempty"`

	// TokensUsed is set for engine_response entries.
	TokensUsed int `json:"tokens_used,omitempty"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// TestOutcome is the final result of a verification session.
//
// Immutable once produced; the web layer serializes it for the caller.
type TestOutcome struct {
	// Passed is the validated verdict. False whenever the session ends
	// without execution evidence supporting a pass.
	Passed bool `json:"passed"`

	// TestSource is the generated test code, when one was written.
	TestSource string `json:"test_source,omitempty"`

	// Log is the human-readable execution log assembled by the
	// validator.
	Log string `json:"log"`

	// Reason records how the session terminated.
	Reason TerminalReason `json:"reason"`

	// Summary is the engine's own summary from validate_test_result,
	// when one was issued.
	Summary string `json:"summary,omitempty"`

	// Turns is the number of engine calls consumed.
	Turns int `json:"turns"`

	// TokensUsed is the total token count across all engine calls.
	TokensUsed int `json:"tokens_used"`

	// Duration is the session wall-clock time.
	Duration time.Duration `json:"duration"`
}

// SessionMetrics tracks counters for one session.
type SessionMetrics struct {
	// EngineCalls counts completed reasoning-engine round trips.
	EngineCalls int `json:"engine_calls"`

	// ToolCalls counts dispatched tool invocations.
	ToolCalls int `json:"tool_calls"`

	// TokensUsed accumulates engine token usage.
	TokensUsed int `json:"tokens_used"`

	// Transitions counts state machine transitions.
	Transitions int `json:"transitions"`
}

// Budget bounds one session. Values come from config.SessionConfig.
type Budget struct {
	// MaxTurns caps reasoning-engine calls.
	MaxTurns int

	// Deadline caps session wall-clock time.
	Deadline time.Duration

	// MaxToolCallsPerTurn caps dispatches from one engine response.
	MaxToolCallsPerTurn int
}

// Validate checks the budget for usable values.
func (b Budget) Validate() error {
	if b.MaxTurns <= 0 {
		return fmt.Errorf("%w: max turns must be positive, got %d", ErrInvalidSession, b.MaxTurns)
	}
	if b.Deadline <= 0 {
		return fmt.Errorf("%w: deadline must be positive, got %v", ErrInvalidSession, b.Deadline)
	}
	if b.MaxToolCallsPerTurn <= 0 {
		return fmt.Errorf("%w: max tool calls per turn must be positive, got %d", ErrInvalidSession, b.MaxToolCallsPerTurn)
	}
	return nil
}

// DefaultBudget returns the default session budget.
func DefaultBudget() Budget {
	return Budget{
		MaxTurns:            10,
		Deadline:            10 * time.Minute,
		MaxToolCallsPerTurn: 5,
	}
}
