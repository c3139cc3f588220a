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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
)

// countingTool records how many times Execute runs.
type countingTool struct {
	def   ToolDefinition
	calls int
	run   func(ctx context.Context, params map[string]any) (*Result, error)
}

func (t *countingTool) Name() string               { return t.def.Name }
func (t *countingTool) Category() ToolCategory     { return t.def.Category }
func (t *countingTool) Definition() ToolDefinition { return t.def }
func (t *countingTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	t.calls++
	if t.run != nil {
		return t.run(ctx, params)
	}
	return &Result{Success: true, Output: "ok"}, nil
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

func newTestDispatcher(tools ...Tool) (*Dispatcher, *Registry) {
	registry := NewRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewDispatcher(registry, quietLogger()), registry
}

func TestDispatch_Success(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{
		Name:     "echo",
		Category: CategoryExecution,
		Parameters: map[string]ParamDef{
			"text": {Type: ParamTypeString, Required: true},
		},
	}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "echo",
		Parameters: map[string]any{"text": "hello"},
	})

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, tool.calls)
}

func TestDispatch_UnknownTool(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{Name: "echo", Category: CategoryExecution}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "rm_rf",
		Parameters: map[string]any{},
	})

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, `"rm_rf"`)
	assert.Contains(t, result.Error, "echo", "error should list available tools")
	assert.Zero(t, tool.calls, "unknown tool must not invoke any handler")
}

func TestDispatch_MissingRequiredArgument(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{
		Name:     "write",
		Category: CategoryFilesystem,
		Parameters: map[string]ParamDef{
			"file_path": {Type: ParamTypeString, Required: true},
		},
	}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "write",
		Parameters: map[string]any{},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "file_path")
	assert.Contains(t, result.Error, "required parameter missing")
	assert.Zero(t, tool.calls, "invalid arguments must not invoke the handler")
}

func TestDispatch_WrongArgumentType(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{
		Name:     "write",
		Category: CategoryFilesystem,
		Parameters: map[string]ParamDef{
			"file_path": {Type: ParamTypeString, Required: true},
		},
	}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "write",
		Parameters: map[string]any{"file_path": 42},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "file_path")
	assert.Zero(t, tool.calls)
}

func TestDispatch_EnumViolation(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{
		Name:     "probe",
		Category: CategoryNetwork,
		Parameters: map[string]ParamDef{
			"method": {Type: ParamTypeString, Enum: []any{"GET", "POST"}},
		},
	}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "probe",
		Parameters: map[string]any{"method": "TRACE"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "enum")
	assert.Zero(t, tool.calls)
}

func TestDispatch_AppliesDefaults(t *testing.T) {
	var seen map[string]any
	tool := &countingTool{
		def: ToolDefinition{
			Name:     "exec",
			Category: CategoryExecution,
			Parameters: map[string]ParamDef{
				"code":     {Type: ParamTypeString, Required: true},
				"language": {Type: ParamTypeString, Default: "python"},
			},
		},
		run: func(ctx context.Context, params map[string]any) (*Result, error) {
			seen = params
			return &Result{Success: true}, nil
		},
	}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "exec",
		Parameters: map[string]any{"code": "print(1)"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "python", seen["language"])
}

func TestDispatch_UnknownArgumentsTolerated(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{
		Name:     "echo",
		Category: CategoryExecution,
		Parameters: map[string]ParamDef{
			"text": {Type: ParamTypeString, Required: true},
		},
	}}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "echo",
		Parameters: map[string]any{"text": "hi", "extra": true},
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, tool.calls)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	tool := &countingTool{
		def: ToolDefinition{Name: "boom", Category: CategoryExecution},
		run: func(ctx context.Context, params map[string]any) (*Result, error) {
			panic("tool exploded")
		},
	}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "boom",
		Parameters: map[string]any{},
	})

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool exploded")
}

func TestDispatch_ToolErrorBecomesResult(t *testing.T) {
	tool := &countingTool{
		def: ToolDefinition{Name: "flaky", Category: CategoryExecution},
		run: func(ctx context.Context, params map[string]any) (*Result, error) {
			return nil, assert.AnError
		},
	}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "flaky",
		Parameters: map[string]any{},
	})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestDispatch_NilResultBecomesFailure(t *testing.T) {
	tool := &countingTool{
		def: ToolDefinition{Name: "empty", Category: CategoryExecution},
		run: func(ctx context.Context, params map[string]any) (*Result, error) {
			return nil, nil
		},
	}
	dispatcher, _ := newTestDispatcher(tool)

	result := dispatcher.Dispatch(context.Background(), &Invocation{
		ToolName:   "empty",
		Parameters: map[string]any{},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no result")
}

func TestDispatch_AttachesResultToInvocation(t *testing.T) {
	tool := &countingTool{def: ToolDefinition{Name: "echo", Category: CategoryExecution}}
	dispatcher, _ := newTestDispatcher(tool)

	invocation := &Invocation{ToolName: "echo", Parameters: map[string]any{}}
	result := dispatcher.Dispatch(context.Background(), invocation)

	assert.NotEmpty(t, invocation.ID, "dispatch should assign an ID")
	assert.Same(t, result, invocation.Result)
	assert.False(t, invocation.CompletedAt.IsZero())
}
