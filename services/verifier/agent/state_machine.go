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
	"sort"
)

// StateMachine validates session state transitions.
//
// Thread Safety:
//
//	StateMachine is immutable after construction and safe for
//	concurrent use.
type StateMachine struct {
	transitions map[SessionState]map[SessionState]bool
}

// NewStateMachine creates the session state machine.
//
// Transitions follow the orchestration protocol: INIT seeds the
// conversation, then engine calls and tool dispatches alternate until
// a terminal state. Every active state can terminate, so budget and
// cancellation checks can fire anywhere in the loop.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[SessionState]map[SessionState]bool),
	}

	sm.addTransition(StateInit, StateAwaitingEngine)
	sm.addTransition(StateAwaitingEngine, StateDispatching)
	sm.addTransition(StateDispatching, StateAwaitingEngine)

	for _, from := range []SessionState{StateInit, StateAwaitingEngine, StateDispatching} {
		sm.addTransition(from, StateTerminatedSuccess)
		sm.addTransition(from, StateTerminatedFailure)
		sm.addTransition(from, StateTerminatedBudget)
		sm.addTransition(from, StateTerminatedFatal)
	}

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to SessionState) {
	if sm.transitions[from] == nil {
		sm.transitions[from] = make(map[SessionState]bool)
	}
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition is valid.
func (sm *StateMachine) CanTransition(from, to SessionState) bool {
	return sm.transitions[from][to]
}

// Transition moves a session to a new state.
//
// Inputs:
//
//	session - The session to transition.
//	to - The target state.
//
// Outputs:
//
//	error - ErrInvalidTransition when the move is not allowed.
func (sm *StateMachine) Transition(session *Session, to SessionState) error {
	from := session.State()
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.setState(to)
	return nil
}

// ValidTransitionsFrom returns the states reachable from the given
// state, sorted for deterministic output.
func (sm *StateMachine) ValidTransitionsFrom(from SessionState) []SessionState {
	targets := sm.transitions[from]
	states := make([]SessionState, 0, len(targets))
	for state := range targets {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// TransitionReason documents why each terminal transition occurs.
var TransitionReason = map[SessionState]string{
	StateAwaitingEngine:    "conversation seeded or tool results appended, engine call next",
	StateDispatching:       "engine requested tool calls",
	StateTerminatedSuccess: "validated verdict: pass",
	StateTerminatedFailure: "validated verdict: fail, no verdict derivable, or canceled",
	StateTerminatedBudget:  "turn or wall-clock budget exhausted",
	StateTerminatedFatal:   "reasoning engine unreachable after retries",
}

// DefaultStateMachine is the shared session state machine.
var DefaultStateMachine = NewStateMachine()
