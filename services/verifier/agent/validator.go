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
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/sandbox"
	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

var (
	failedCountPattern   = regexp.MustCompile(`\b\d+\s+failed\b`)
	missingModulePattern = regexp.MustCompile(`No module named '([^']+)'`)
)

// failureMarkers are output substrings that prove a run went wrong
// regardless of the exit code the process reported.
var failureMarkers = []string{
	"found no collectors",
	"ModuleNotFoundError",
	"ImportError",
	"SyntaxError",
	"Traceback (most recent call last)",
}

// Validator reconciles the engine's self-reported verdict with the
// recorded execution evidence.
//
// Description:
//
//	The policy favors false negatives: a reported pass is accepted
//	only when at least one execution succeeded and no execution in the
//	session exited nonzero or printed a recognized failure marker. A
//	reported fail is always accepted. Sessions ending on budget,
//	deadline, cancellation, or engine outage are failures with the
//	terminal reason recorded, never a log-derived guess.
//
// Thread Safety:
//
//	Validator is stateless and safe for concurrent use.
type Validator struct {
	logger *logging.Logger
}

// NewValidator creates a result validator.
func NewValidator(logger *logging.Logger) *Validator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Validator{logger: logger.With("component", "validator")}
}

// evidence is what the execution record proves about the session.
type evidence struct {
	executions int
	successes  int
	failures   []string
	logLines   []string
}

// Finalize produces the session's TestOutcome.
//
// Inputs:
//
//	session - The terminating session.
//	reason - Why the session is ending.
//
// Outputs:
//
//	*TestOutcome - The validated outcome. Never nil.
func (v *Validator) Finalize(session *Session, reason TerminalReason) *TestOutcome {
	ev := v.collectEvidence(session.Invocations())
	metrics := session.Metrics()

	outcome := &TestOutcome{
		TestSource: session.TestSource(),
		Reason:     reason,
		Turns:      metrics.EngineCalls,
		TokensUsed: metrics.TokensUsed,
		Duration:   time.Since(session.StartedAt()),
	}

	verdict := session.Verdict()
	switch {
	case reason != ReasonVerdict:
		outcome.Passed = false
		ev.logLines = append(ev.logLines, fmt.Sprintf("Session ended without a verdict: %s", reason))

	case verdict == nil:
		outcome.Passed = false
		outcome.Reason = ReasonNoVerdict
		ev.logLines = append(ev.logLines, "The engine stopped without reporting a verdict.")

	case !verdict.Passed:
		outcome.Passed = false
		outcome.Summary = verdict.Summary

	case ev.executions == 0:
		// A pass claim with nothing ever executed is not evidence.
		outcome.Passed = false
		outcome.Summary = verdict.Summary
		ev.logLines = append(ev.logLines, "Reported pass rejected: no test was ever executed.")
		v.logger.Warn("verdict override", "session_id", session.ID, "cause", "no execution evidence")

	case len(ev.failures) > 0:
		outcome.Passed = false
		outcome.Summary = verdict.Summary
		ev.logLines = append(ev.logLines,
			fmt.Sprintf("Reported pass rejected: %d execution failure(s) observed.", len(ev.failures)))
		v.logger.Warn("verdict override", "session_id", session.ID, "cause", ev.failures[0])

	default:
		outcome.Passed = true
		outcome.Summary = verdict.Summary
	}

	outcome.Log = strings.Join(ev.logLines, "\n")
	return outcome
}

// collectEvidence scans the execution record for proof of success or
// failure, building the human-readable log as it goes.
func (v *Validator) collectEvidence(invocations []*tools.Invocation) *evidence {
	ev := &evidence{}

	for _, invocation := range invocations {
		if invocation.ToolName != "execute_code" && invocation.ToolName != "run_command" {
			continue
		}
		if invocation.Result == nil {
			continue
		}
		ev.executions++

		res, _ := invocation.Result.Data.(*sandbox.ExecResult)
		output := invocation.Result.Output
		if res != nil {
			output = res.Stdout + "\n" + res.Stderr
		}

		if failure := classifyFailure(invocation.Result, res, output); failure != "" {
			ev.failures = append(ev.failures, failure)
			ev.logLines = append(ev.logLines, fmt.Sprintf("[%s] FAILED: %s", invocation.ToolName, failure))
			ev.logLines = append(ev.logLines, failureHints(output)...)
			continue
		}

		ev.successes++
		ev.logLines = append(ev.logLines, fmt.Sprintf("[%s] ok: %s", invocation.ToolName, firstLine(output)))
	}

	return ev
}

// classifyFailure returns a description of the failure, or empty when
// the execution counts as a success.
func classifyFailure(result *tools.Result, res *sandbox.ExecResult, output string) string {
	if res != nil && res.ExitCode != 0 {
		return fmt.Sprintf("exit code %d", res.ExitCode)
	}
	if !result.Success {
		if result.Error != "" {
			return firstLine(result.Error)
		}
		return "execution failed"
	}
	for _, marker := range failureMarkers {
		if strings.Contains(output, marker) {
			return fmt.Sprintf("output contains %q", marker)
		}
	}
	if failedCountPattern.MatchString(strings.ToLower(output)) {
		return "test runner reported failures"
	}
	return ""
}

// failureHints derives actionable log lines from common failure
// signatures.
func failureHints(output string) []string {
	var hints []string

	if m := missingModulePattern.FindStringSubmatch(output); m != nil {
		hints = append(hints,
			fmt.Sprintf("Hint: module %q was not importable; it may need installing, or the import path may include the project root folder.", m[1]))
	}
	if strings.Contains(output, "found no collectors") || strings.Contains(output, "no collectors") {
		hints = append(hints,
			"Hint: pytest found no collectors, which means the test file failed to import; check its import statements.")
	}
	return hints
}

// firstLine trims output to a single log-friendly line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
