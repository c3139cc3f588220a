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
	"errors"

	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
)

var (
	// ErrInvalidTransition indicates an invalid state machine transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionTerminated indicates an operation on a terminated session.
	ErrSessionTerminated = errors.New("session already terminated")

	// ErrSessionInProgress indicates the session is already running.
	ErrSessionInProgress = errors.New("session already in progress")

	// ErrSessionNotFound indicates the session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession indicates invalid session configuration.
	ErrInvalidSession = errors.New("invalid session configuration")

	// ErrMaxTurnsExceeded indicates the engine call budget ran out.
	ErrMaxTurnsExceeded = errors.New("maximum turns exceeded")

	// ErrDeadlineExceeded indicates the session wall-clock budget ran out.
	ErrDeadlineExceeded = errors.New("session deadline exceeded")

	// ErrCanceled indicates the caller aborted the session.
	ErrCanceled = errors.New("session canceled")

	// ErrEngineUnavailable indicates the reasoning engine stayed
	// unreachable after retries. Aliases the engine sentinel so one
	// errors.Is check matches failures from the loop and from the
	// locator alike. Surfaced to the caller as a distinct error, never
	// downgraded to a failed test outcome.
	ErrEngineUnavailable = engine.ErrEngineUnavailable
)
