// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeVerify/services/verifier/sandbox"
)

// spyRunner records sandbox calls and returns scripted results.
type spyRunner struct {
	readCalls, writeCalls, execCalls, commandCalls, probeCalls int

	readContent string
	readErr     error
	writeErr    error
	execResult  *sandbox.ExecResult
	probeResult *sandbox.HTTPResult

	lastCommand    string
	lastWorkingDir string
	lastLanguage   string
}

func (r *spyRunner) ReadFile(ctx context.Context, path string) (string, error) {
	r.readCalls++
	return r.readContent, r.readErr
}

func (r *spyRunner) WriteFile(ctx context.Context, path, content string) error {
	r.writeCalls++
	return r.writeErr
}

func (r *spyRunner) ExecuteCode(ctx context.Context, code, language string) (*sandbox.ExecResult, error) {
	r.execCalls++
	r.lastLanguage = language
	return r.execResult, nil
}

func (r *spyRunner) RunCommand(ctx context.Context, command, workingDir string) (*sandbox.ExecResult, error) {
	r.commandCalls++
	r.lastCommand = command
	r.lastWorkingDir = workingDir
	return r.execResult, nil
}

func (r *spyRunner) CheckEndpoint(ctx context.Context, url, method string, payload map[string]any, headers map[string]string) (*sandbox.HTTPResult, error) {
	r.probeCalls++
	return r.probeResult, nil
}

func newAdapterHarness(runner Runner) *Dispatcher {
	registry := NewRegistry()
	RegisterVerifierTools(registry, runner)
	return NewDispatcher(registry, quietLogger())
}

func TestReadFileTool(t *testing.T) {
	runner := &spyRunner{readContent: "def main(): pass\n"}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "read_file",
		Parameters: map[string]any{"file_path": "main.py"},
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, runner.readCalls)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Output), &payload))
	assert.Equal(t, "def main(): pass\n", payload["content"])
}

func TestReadFileTool_NotFound(t *testing.T) {
	runner := &spyRunner{readErr: errors.New("file not found: missing.py")}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "read_file",
		Parameters: map[string]any{"file_path": "missing.py"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "file not found")
}

func TestReadFileTool_MissingPathNeverReachesSandbox(t *testing.T) {
	runner := &spyRunner{}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "read_file",
		Parameters: map[string]any{},
	})

	assert.False(t, result.Success)
	assert.Zero(t, runner.readCalls, "schema failure must not touch the sandbox")
}

func TestWriteFileTool(t *testing.T) {
	runner := &spyRunner{}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName: "write_file",
		Parameters: map[string]any{
			"file_path": "tests/test_feature.py",
			"content":   "def test_ok(): pass\n",
		},
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, runner.writeCalls)
	assert.Contains(t, result.Output, "File written: tests/test_feature.py")
}

func TestExecuteCodeTool_DefaultsToPython(t *testing.T) {
	runner := &spyRunner{execResult: &sandbox.ExecResult{Success: true, Stdout: "4\n"}}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "execute_code",
		Parameters: map[string]any{"code": "print(2+2)"},
	})

	require.True(t, result.Success)
	assert.Equal(t, "python", runner.lastLanguage)
}

func TestExecuteCodeTool_FailureCarriesStderr(t *testing.T) {
	runner := &spyRunner{execResult: &sandbox.ExecResult{
		Success:  false,
		Stderr:   "ModuleNotFoundError: No module named 'flask'",
		ExitCode: 1,
	}}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "execute_code",
		Parameters: map[string]any{"code": "import flask"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ModuleNotFoundError")

	res, ok := result.Data.(*sandbox.ExecResult)
	require.True(t, ok)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunCommandTool(t *testing.T) {
	runner := &spyRunner{execResult: &sandbox.ExecResult{Success: true, Stdout: "2 passed\n"}}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName: "run_command",
		Parameters: map[string]any{
			"command":     "pytest tests/",
			"working_dir": "myapp",
		},
	})

	require.True(t, result.Success)
	assert.Equal(t, "pytest tests/", runner.lastCommand)
	assert.Equal(t, "myapp", runner.lastWorkingDir)
}

func TestCheckEndpointTool(t *testing.T) {
	runner := &spyRunner{probeResult: &sandbox.HTTPResult{
		Success:    true,
		StatusCode: 200,
		Body:       map[string]any{"status": "ok"},
	}}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName: "check_api_endpoint",
		Parameters: map[string]any{
			"url":    "http://localhost:5000/health",
			"method": "GET",
		},
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, runner.probeCalls)
}

func TestCheckEndpointTool_RejectsBadMethodBeforeSandbox(t *testing.T) {
	runner := &spyRunner{}
	dispatcher := newAdapterHarness(runner)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName: "check_api_endpoint",
		Parameters: map[string]any{
			"url":    "http://localhost:5000/health",
			"method": "TRACE",
		},
	})

	assert.False(t, result.Success)
	assert.Zero(t, runner.probeCalls)
}

func TestValidateResultTool(t *testing.T) {
	dispatcher := newAdapterHarness(&spyRunner{})

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName: "validate_test_result",
		Parameters: map[string]any{
			"passed":  true,
			"summary": "3 tests passed against /users endpoint",
		},
	})

	require.True(t, result.Success)
	verdict, ok := result.Data.(*Verdict)
	require.True(t, ok)
	assert.True(t, verdict.Passed)
	assert.Equal(t, "3 tests passed against /users endpoint", verdict.Summary)
}

func TestValidateResultTool_RequiresPassed(t *testing.T) {
	dispatcher := newAdapterHarness(&spyRunner{})

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "validate_test_result",
		Parameters: map[string]any{"summary": "no verdict"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "passed")
}
