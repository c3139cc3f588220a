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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeVerify/services/verifier/sandbox"
	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

func execInvocation(tool string, res *sandbox.ExecResult) *tools.Invocation {
	output := res.Stdout
	errText := ""
	if !res.Success {
		errText = res.Stderr
	}
	return &tools.Invocation{
		ToolName: tool,
		Result: &tools.Result{
			Success: res.Success,
			Output:  output,
			Error:   errText,
			Data:    res,
		},
	}
}

func TestValidator_AcceptsSupportedPass(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", execInvocation("run_command",
		&sandbox.ExecResult{Success: true, Stdout: "2 passed in 0.04s", ExitCode: 0}))
	session.SetVerdict(&tools.Verdict{Passed: true, Summary: "both endpoints verified"})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.True(t, outcome.Passed)
	assert.Equal(t, ReasonVerdict, outcome.Reason)
	assert.Equal(t, "both endpoints verified", outcome.Summary)
}

func TestValidator_RejectsPassWithoutExecution(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", &tools.Invocation{
		ToolName: "read_file",
		Result:   &tools.Result{Success: true, Output: "def main(): pass"},
	})
	session.SetVerdict(&tools.Verdict{Passed: true})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.False(t, outcome.Passed, "a pass claim with no execution evidence must be rejected")
	assert.Contains(t, outcome.Log, "no test was ever executed")
}

func TestValidator_NonzeroExitOverridesPass(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", execInvocation("run_command",
		&sandbox.ExecResult{Success: false, Stderr: "1 failed, 0 passed", ExitCode: 1}))
	session.SetVerdict(&tools.Verdict{Passed: true, Summary: "all good"})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Log, "execution failure")
}

func TestValidator_FailureMarkerOverridesCleanExit(t *testing.T) {
	// pytest can exit 0 from a wrapper while the output proves the
	// test file never imported.
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", execInvocation("run_command",
		&sandbox.ExecResult{Success: true, Stdout: "error: found no collectors for test_generated.py", ExitCode: 0}))
	session.SetVerdict(&tools.Verdict{Passed: true})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Log, "pytest found no collectors")
}

func TestValidator_MissingModuleHint(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", execInvocation("execute_code",
		&sandbox.ExecResult{Success: false, Stderr: "ModuleNotFoundError: No module named 'flask'", ExitCode: 1}))
	session.SetVerdict(&tools.Verdict{Passed: false})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	require.False(t, outcome.Passed)
	assert.Contains(t, outcome.Log, `module "flask"`)
}

func TestValidator_ReportedFailAlwaysAccepted(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()
	session.RecordInvocation("call_0", execInvocation("run_command",
		&sandbox.ExecResult{Success: true, Stdout: "3 passed", ExitCode: 0}))
	session.SetVerdict(&tools.Verdict{Passed: false, Summary: "feature not implemented"})

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.False(t, outcome.Passed, "the validator never upgrades a reported fail")
	assert.Equal(t, "feature not implemented", outcome.Summary)
}

func TestValidator_TerminalReasonsWithoutVerdict(t *testing.T) {
	for _, reason := range []TerminalReason{
		ReasonBudgetExceeded,
		ReasonDeadlineExceeded,
		ReasonCanceled,
		ReasonEngineUnavailable,
	} {
		t.Run(string(reason), func(t *testing.T) {
			session := newTestSession(t)
			session.TryAcquire()

			outcome := NewValidator(nil).Finalize(session, reason)

			assert.False(t, outcome.Passed)
			assert.Equal(t, reason, outcome.Reason)
			assert.Contains(t, outcome.Log, string(reason))
		})
	}
}

func TestValidator_NoVerdictReason(t *testing.T) {
	session := newTestSession(t)
	session.TryAcquire()

	outcome := NewValidator(nil).Finalize(session, ReasonVerdict)

	assert.False(t, outcome.Passed)
	assert.Equal(t, ReasonNoVerdict, outcome.Reason)
}
