// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the capability surface the reasoning engine
// can call during a verification session.
//
// The tool set is fixed: read_file, write_file, execute_code,
// run_command, check_api_endpoint, and validate_test_result. Tools are
// registered in a Registry and invoked through a Dispatcher that
// validates arguments against each tool's schema and converts every
// failure, including panics, into a structured Result the engine can
// read. Nothing escapes the dispatch boundary as a Go error.
package tools

import (
	"context"
	"fmt"
	"time"
)

// ToolCategory groups tools by the kind of evidence they produce.
type ToolCategory string

const (
	// CategoryFilesystem covers workspace reads and writes.
	CategoryFilesystem ToolCategory = "filesystem"

	// CategoryExecution covers snippet and command execution.
	CategoryExecution ToolCategory = "execution"

	// CategoryNetwork covers HTTP endpoint probes.
	CategoryNetwork ToolCategory = "network"

	// CategoryValidation covers self-reported verdict submission.
	CategoryValidation ToolCategory = "validation"
)

// ParamType identifies the JSON type of a tool parameter.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeFloat  ParamType = "number"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeArray  ParamType = "array"
	ParamTypeObject ParamType = "object"
)

// ParamDef describes one tool parameter.
type ParamDef struct {
	// Type is the expected JSON type.
	Type ParamType `json:"type"`

	// Description explains the parameter to the engine.
	Description string `json:"description"`

	// Required marks parameters that must be present.
	Required bool `json:"required"`

	// Default is applied when an optional parameter is absent.
	Default any `json:"default,omitempty"`

	// Enum restricts the value to a fixed set.
	Enum []any `json:"enum,omitempty"`

	// MinLength/MaxLength bound string values (0 = unbounded).
	MinLength int `json:"min_length,omitempty"`
	MaxLength int `json:"max_length,omitempty"`

	// Minimum/Maximum bound numeric values.
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
}

// ToolDefinition is the engine-facing schema for one tool.
type ToolDefinition struct {
	// Name is the unique tool name.
	Name string `json:"name"`

	// Description explains when the engine should call the tool.
	Description string `json:"description"`

	// Parameters maps parameter names to their definitions.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category groups the tool.
	Category ToolCategory `json:"category"`

	// Priority orders tools in definition lists (higher first).
	Priority int `json:"priority"`

	// SideEffects marks tools that mutate the workspace or reach the
	// network.
	SideEffects bool `json:"side_effects"`

	// Timeout bounds one execution. Zero uses the dispatcher default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Tool is one engine-invocable capability.
//
// Implementations must be safe for concurrent use and must report
// domain failures (missing file, nonzero exit, refused connection)
// inside the Result, reserving the error return for context
// cancellation.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool's category.
	Category() ToolCategory

	// Definition returns the engine-facing schema.
	Definition() ToolDefinition

	// Execute runs the tool with validated parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the structured outcome of one tool execution.
type Result struct {
	// Success is true when the operation achieved its purpose. A
	// command that ran but exited nonzero is not a success.
	Success bool `json:"success"`

	// Output is the engine-facing content: file text, captured
	// stdout/stderr, or a serialized payload.
	Output string `json:"output"`

	// Data carries the structured payload for programmatic consumers
	// (the result validator in particular).
	Data any `json:"data,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`
}

// Invocation is one requested tool call.
type Invocation struct {
	// ID uniquely identifies the call; assigned when empty.
	ID string `json:"id"`

	// ToolName is the requested tool.
	ToolName string `json:"tool_name"`

	// Parameters are the decoded call arguments.
	Parameters map[string]any `json:"parameters"`

	// StartedAt/CompletedAt bracket execution.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Result is attached after dispatch.
	Result *Result `json:"result,omitempty"`
}

// ValidationError reports a parameter that failed schema validation.
type ValidationError struct {
	// Parameter is the offending parameter name.
	Parameter string

	// Message describes the violation.
	Message string

	// Expected/Actual add type or value detail when useful.
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message)
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(" (expected %s, got %s)", e.Expected, e.Actual)
	}
	return msg
}
