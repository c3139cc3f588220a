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
	"fmt"
	"time"

	"github.com/AleutianAI/CodeVerify/services/verifier/sandbox"
)

// Runner is the sandbox surface the capability tools call into.
//
// *sandbox.Sandbox satisfies this interface; tests substitute spies to
// prove invalid calls never reach it.
type Runner interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	ExecuteCode(ctx context.Context, code, language string) (*sandbox.ExecResult, error)
	RunCommand(ctx context.Context, command, workingDir string) (*sandbox.ExecResult, error)
	CheckEndpoint(ctx context.Context, url, method string, payload map[string]any, headers map[string]string) (*sandbox.HTTPResult, error)
}

// RegisterVerifierTools registers the six verification capabilities.
//
// Inputs:
//
//	registry - The tool registry.
//	runner - The sandbox the tools execute against.
func RegisterVerifierTools(registry *Registry, runner Runner) {
	registry.Register(&readFileTool{runner: runner})
	registry.Register(&writeFileTool{runner: runner})
	registry.Register(&executeCodeTool{runner: runner})
	registry.Register(&runCommandTool{runner: runner})
	registry.Register(&checkEndpointTool{runner: runner})
	registry.Register(&validateResultTool{})
}

// jsonPayload marshals a tool payload for the engine-facing Output.
func jsonPayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"unserializable result: %v"}`, err)
	}
	return string(data)
}

// stringParam extracts an optional string argument.
func stringParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

// ============================================================================
// read_file
// ============================================================================

type readFileTool struct {
	runner Runner
}

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Category() ToolCategory { return CategoryFilesystem }

func (t *readFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_file",
		Description: "Read the content of a file from the codebase. Use this to inspect implementation code before writing tests.",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Relative path to the file from the codebase root",
				Required:    true,
				MinLength:   1,
			},
		},
		Category: CategoryFilesystem,
		Priority: 90,
		Timeout:  5 * time.Second,
	}
}

func (t *readFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	path := stringParam(params, "file_path")

	content, err := t.runner.ReadFile(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Success: false,
			Output:  jsonPayload(map[string]any{"success": false, "error": err.Error()}),
			Error:   err.Error(),
		}, nil
	}

	payload := map[string]any{"success": true, "content": content, "file_path": path}
	return &Result{Success: true, Output: jsonPayload(payload), Data: payload}, nil
}

// ============================================================================
// write_file
// ============================================================================

type writeFileTool struct {
	runner Runner
}

func (t *writeFileTool) Name() string { return "write_file" }

func (t *writeFileTool) Category() ToolCategory { return CategoryFilesystem }

func (t *writeFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file in the codebase. Use this to create test files before running them.",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Relative path for the file from the codebase root",
				Required:    true,
				MinLength:   1,
			},
			"content": {
				Type:        ParamTypeString,
				Description: "Full content to write",
				Required:    true,
			},
		},
		Category:    CategoryFilesystem,
		Priority:    85,
		SideEffects: true,
		Timeout:     5 * time.Second,
	}
}

func (t *writeFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	path := stringParam(params, "file_path")
	content := stringParam(params, "content")

	if err := t.runner.WriteFile(ctx, path, content); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Success: false,
			Output:  jsonPayload(map[string]any{"success": false, "error": err.Error()}),
			Error:   err.Error(),
		}, nil
	}

	payload := map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("File written: %s", path),
		"file_path": path,
	}
	return &Result{Success: true, Output: jsonPayload(payload), Data: payload}, nil
}

// ============================================================================
// execute_code
// ============================================================================

type executeCodeTool struct {
	runner Runner
}

func (t *executeCodeTool) Name() string { return "execute_code" }

func (t *executeCodeTool) Category() ToolCategory { return CategoryExecution }

func (t *executeCodeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "execute_code",
		Description: "Execute a code snippet in the codebase environment and capture its output. Use this to verify imports and probe behavior before running a full test suite.",
		Parameters: map[string]ParamDef{
			"code": {
				Type:        ParamTypeString,
				Description: "Code to execute",
				Required:    true,
				MinLength:   1,
			},
			"language": {
				Type:        ParamTypeString,
				Description: "Language of the snippet: python, javascript, typescript, or js",
				Required:    false,
				Default:     "python",
			},
		},
		Category:    CategoryExecution,
		Priority:    80,
		SideEffects: true,
		Timeout:     15 * time.Second,
	}
}

func (t *executeCodeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	code := stringParam(params, "code")
	language := stringParam(params, "language")

	res, err := t.runner.ExecuteCode(ctx, code, language)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"success":   res.Success,
		"output":    res.Stdout,
		"error":     res.Stderr,
		"exit_code": res.ExitCode,
	}
	return &Result{
		Success: res.Success,
		Output:  jsonPayload(payload),
		Data:    res,
		Error:   failureMessage(res),
	}, nil
}

// ============================================================================
// run_command
// ============================================================================

type runCommandTool struct {
	runner Runner
}

func (t *runCommandTool) Name() string { return "run_command" }

func (t *runCommandTool) Category() ToolCategory { return CategoryExecution }

func (t *runCommandTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "run_command",
		Description: "Run a shell command in the codebase directory, e.g. to install dependencies (pip install ...) or run tests (pytest ...). Python tooling is pinned to a single interpreter automatically.",
		Parameters: map[string]ParamDef{
			"command": {
				Type:        ParamTypeString,
				Description: "Shell command to run",
				Required:    true,
				MinLength:   1,
			},
			"working_dir": {
				Type:        ParamTypeString,
				Description: "Working directory relative to the codebase root",
				Required:    false,
			},
		},
		Category:    CategoryExecution,
		Priority:    75,
		SideEffects: true,
		Timeout:     90 * time.Second,
	}
}

func (t *runCommandTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	command := stringParam(params, "command")
	workingDir := stringParam(params, "working_dir")

	res, err := t.runner.RunCommand(ctx, command, workingDir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Success: false,
			Output:  jsonPayload(map[string]any{"success": false, "error": err.Error()}),
			Error:   err.Error(),
		}, nil
	}

	payload := map[string]any{
		"success":    res.Success,
		"stdout":     res.Stdout,
		"stderr":     res.Stderr,
		"returncode": res.ExitCode,
	}
	return &Result{
		Success: res.Success,
		Output:  jsonPayload(payload),
		Data:    res,
		Error:   failureMessage(res),
	}, nil
}

// failureMessage summarizes a failed execution for the Result.Error
// field; empty for successes.
func failureMessage(res *sandbox.ExecResult) string {
	if res.Success {
		return ""
	}
	if res.Stderr != "" {
		return res.Stderr
	}
	return fmt.Sprintf("process exited with code %d", res.ExitCode)
}

// ============================================================================
// check_api_endpoint
// ============================================================================

type checkEndpointTool struct {
	runner Runner
}

func (t *checkEndpointTool) Name() string { return "check_api_endpoint" }

func (t *checkEndpointTool) Category() ToolCategory { return CategoryNetwork }

func (t *checkEndpointTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "check_api_endpoint",
		Description: "Send an HTTP request to an API endpoint and capture the status and body. Use this to verify a running service's behavior.",
		Parameters: map[string]ParamDef{
			"url": {
				Type:        ParamTypeString,
				Description: "Endpoint URL",
				Required:    true,
				MinLength:   1,
			},
			"method": {
				Type:        ParamTypeString,
				Description: "HTTP method",
				Required:    false,
				Default:     "GET",
				Enum:        []any{"GET", "POST", "PUT", "DELETE"},
			},
			"payload": {
				Type:        ParamTypeObject,
				Description: "JSON payload for POST/PUT requests",
				Required:    false,
			},
			"headers": {
				Type:        ParamTypeObject,
				Description: "Extra request headers",
				Required:    false,
			},
		},
		Category:    CategoryNetwork,
		Priority:    70,
		SideEffects: true,
		Timeout:     15 * time.Second,
	}
}

func (t *checkEndpointTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	url := stringParam(params, "url")
	method := stringParam(params, "method")

	var payload map[string]any
	if p, ok := params["payload"].(map[string]any); ok {
		payload = p
	}
	headers := make(map[string]string)
	if h, ok := params["headers"].(map[string]any); ok {
		for name, value := range h {
			if s, ok := value.(string); ok {
				headers[name] = s
			}
		}
	}

	res, err := t.runner.CheckEndpoint(ctx, url, method, payload, headers)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success: res.Success,
		Output:  jsonPayload(res),
		Data:    res,
		Error:   res.Error,
	}, nil
}

// ============================================================================
// validate_test_result
// ============================================================================

// validateResultTool records the engine's self-reported verdict. The
// verdict is advisory: the session's result validator cross-checks it
// against observed execution evidence before accepting a pass.
type validateResultTool struct{}

func (t *validateResultTool) Name() string { return "validate_test_result" }

func (t *validateResultTool) Category() ToolCategory { return CategoryValidation }

func (t *validateResultTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "validate_test_result",
		Description: "Report the final verdict after running the generated tests. Call this exactly once, after test execution, with the observed outcome.",
		Parameters: map[string]ParamDef{
			"passed": {
				Type:        ParamTypeBool,
				Description: "Whether the generated tests passed",
				Required:    true,
			},
			"summary": {
				Type:        ParamTypeString,
				Description: "Short summary of what was verified and the observed outcome",
				Required:    false,
			},
		},
		Category: CategoryValidation,
		Priority: 60,
		Timeout:  time.Second,
	}
}

func (t *validateResultTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	passed, _ := params["passed"].(bool)
	summary := stringParam(params, "summary")

	payload := map[string]any{
		"valid":      true,
		"is_success": passed,
		"message":    "Verdict recorded",
	}
	return &Result{
		Success: true,
		Output:  jsonPayload(payload),
		Data: &Verdict{
			Passed:  passed,
			Summary: summary,
		},
	}, nil
}

// Verdict is the engine's self-reported outcome, extracted by the
// session loop from a validate_test_result call.
type Verdict struct {
	Passed  bool   `json:"passed"`
	Summary string `json:"summary"`
}
