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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

// Session is one end-to-end verification run.
//
// Description:
//
//	A session owns its workspace, execution context, and transcript.
//	Sessions never share mutable state, so concurrent sessions need no
//	coordination beyond their own mutex.
//
// Thread Safety:
//
//	Session is safe for concurrent use. The loop holds the run slot
//	via TryAcquire, so only one goroutine drives the protocol, but
//	observers may read state and metrics at any time.
type Session struct {
	mu sync.RWMutex

	// ID uniquely identifies the session.
	ID string `json:"id"`

	// Feature is the description of the feature to verify.
	Feature string `json:"feature"`

	// Seed is the feature-locator context injected into the first user
	// message. Advisory only.
	Seed string `json:"seed,omitempty"`

	// Budget bounds the session.
	Budget Budget `json:"budget"`

	// Index is the codebase index over the extracted workspace.
	Index *workspace.Index `json:"-"`

	// Runner is the execution sandbox scoped to this session's
	// workspace.
	Runner tools.Runner `json:"-"`

	state       SessionState
	messages    []engine.Message
	transcript  []TranscriptEntry
	invocations []*tools.Invocation
	metrics     SessionMetrics
	verdict     *tools.Verdict
	testSource  string
	outcome     *TestOutcome
	startedAt   time.Time
	running     bool
}

// NewSession creates a session in StateInit.
//
// Inputs:
//
//	feature - The feature description. Must be non-empty.
//	index - The codebase index. Must be non-nil.
//	runner - The sandbox for this session's workspace. Must be non-nil.
//	budget - Session bounds; zero values are rejected.
//
// Outputs:
//
//	*Session - The new session.
//	error - ErrInvalidSession when inputs are unusable.
func NewSession(feature string, index *workspace.Index, runner tools.Runner, budget Budget) (*Session, error) {
	if feature == "" {
		return nil, fmt.Errorf("%w: feature description is empty", ErrInvalidSession)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: codebase index is nil", ErrInvalidSession)
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: sandbox runner is nil", ErrInvalidSession)
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		ID:      uuid.NewString(),
		Feature: feature,
		Budget:  budget,
		Index:   index,
		Runner:  runner,
		state:   StateInit,
	}, nil
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState records a transition. Callers go through
// StateMachine.Transition, which validates the move first.
func (s *Session) setState(to SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Transitions++
	s.transcript = append(s.transcript, TranscriptEntry{
		Turn:      s.metrics.EngineCalls,
		Type:      "transition",
		State:     to,
		Content:   fmt.Sprintf("%s -> %s", s.state, to),
		Timestamp: time.Now(),
	})
	s.state = to
}

// IsTerminated returns true once the session reached a terminal state.
func (s *Session) IsTerminated() bool {
	return s.State().IsTerminal()
}

// TryAcquire claims the run slot. Returns false if the session is
// already running or terminated.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.state.IsTerminal() {
		return false
	}
	s.running = true
	s.startedAt = time.Now()
	return true
}

// Release frees the run slot.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// StartedAt returns when the run slot was acquired.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Messages returns a copy of the wire-format conversation.
func (s *Session) Messages() []engine.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]engine.Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// AppendMessage appends one conversation message.
func (s *Session) AppendMessage(msg engine.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// RecordEngineResponse appends the engine response to the conversation
// and the transcript, and bumps the turn counters.
func (s *Session) RecordEngineResponse(response *engine.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.EngineCalls++
	s.metrics.TokensUsed += response.TokensUsed

	s.messages = append(s.messages, engine.Message{
		Role:      "assistant",
		Content:   response.Content,
		ToolCalls: response.ToolCalls,
	})
	s.transcript = append(s.transcript, TranscriptEntry{
		Turn:       s.metrics.EngineCalls,
		Type:       "engine_response",
		State:      s.state,
		Content:    response.Content,
		TokensUsed: response.TokensUsed,
		Timestamp:  time.Now(),
	})
}

// RecordInvocation appends a completed tool invocation to the
// execution record and the transcript, and the result to the
// conversation so the engine sees it next turn.
func (s *Session) RecordInvocation(callID string, invocation *tools.Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ToolCalls++
	s.invocations = append(s.invocations, invocation)

	content := ""
	if invocation.Result != nil {
		if invocation.Result.Success {
			content = invocation.Result.Output
		} else {
			content = fmt.Sprintf("Error: %s", invocation.Result.Error)
			if invocation.Result.Output != "" {
				content = fmt.Sprintf("%s\n%s", content, invocation.Result.Output)
			}
		}
	}
	s.messages = append(s.messages, engine.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: callID,
	})
	s.transcript = append(s.transcript, TranscriptEntry{
		Turn:       s.metrics.EngineCalls,
		Type:       "tool_call",
		State:      s.state,
		ToolName:   invocation.ToolName,
		Invocation: invocation,
		Timestamp:  time.Now(),
	})
}

// Invocations returns a copy of the execution record.
func (s *Session) Invocations() []*tools.Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invocations := make([]*tools.Invocation, len(s.invocations))
	copy(invocations, s.invocations)
	return invocations
}

// Transcript returns a copy of the audit transcript.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	return transcript
}

// Metrics returns a snapshot of the session counters.
func (s *Session) Metrics() SessionMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// SetVerdict stores the engine's self-reported verdict.
func (s *Session) SetVerdict(verdict *tools.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict = verdict
}

// Verdict returns the engine's self-reported verdict, or nil.
func (s *Session) Verdict() *tools.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdict
}

// OfferTestSource records candidate test code. The largest candidate
// wins, so incremental rewrites of the same test keep the final
// version.
func (s *Session) OfferTestSource(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(source) > len(s.testSource) {
		s.testSource = source
	}
}

// TestSource returns the collected test code, or empty.
func (s *Session) TestSource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testSource
}

// SetOutcome stores the final outcome. First write wins.
func (s *Session) SetOutcome(outcome *TestOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome == nil {
		s.outcome = outcome
	}
}

// Outcome returns the final outcome, or nil while running.
func (s *Session) Outcome() *TestOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}
