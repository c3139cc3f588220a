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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
)

// Sentinel errors carried inside failure Results for classification.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates argument validation failed.
	ErrValidationFailed = errors.New("argument validation failed")
)

// DefaultDispatchTimeout bounds tools that declare no timeout.
const DefaultDispatchTimeout = 60 * time.Second

// Dispatcher routes engine tool calls to registered tools.
//
// Description:
//
//	Dispatch never returns a Go error and never panics outward. An
//	unknown tool name, malformed arguments, a tool failure, or a tool
//	panic all become failure Results whose Error field tells the
//	engine what went wrong so it can correct itself on the next turn.
//	Unknown tools and invalid arguments never reach a tool's Execute
//	method.
//
// Thread Safety:
//
//	Dispatcher is safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	logger   *logging.Logger
}

// NewDispatcher creates a Dispatcher over the registry.
//
// Inputs:
//
//	registry - Tool registry. Must not be nil.
//	logger - Audit logger. Nil uses logging.Default.
func NewDispatcher(registry *Registry, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch executes one invocation.
//
// Inputs:
//
//	ctx - Cancellation; a per-tool timeout is layered on top.
//	invocation - The call to execute. A nil invocation yields a
//	failure Result.
//
// Outputs:
//
//	*Result - Always non-nil. Failures carry an Error message.
func (d *Dispatcher) Dispatch(ctx context.Context, invocation *Invocation) (result *Result) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", invocation.ToolName, "panic", r)
			result = &Result{
				Success:  false,
				Error:    fmt.Sprintf("internal tool failure: %v", r),
				Duration: time.Since(started),
			}
		}
		if result != nil && invocation != nil {
			invocation.CompletedAt = time.Now()
			invocation.Result = result
		}
	}()

	if invocation == nil {
		return &Result{Success: false, Error: "nil invocation"}
	}
	if invocation.ID == "" {
		invocation.ID = uuid.NewString()
	}

	logger := d.logger.With("tool", invocation.ToolName, "invocation_id", invocation.ID)

	tool, ok := d.registry.Get(invocation.ToolName)
	if !ok {
		logger.Warn("unknown tool requested")
		return &Result{
			Success: false,
			Error: fmt.Sprintf("%v: %q. Available tools: %s",
				ErrToolNotFound, invocation.ToolName, strings.Join(d.registry.Names(), ", ")),
			Duration: time.Since(started),
		}
	}

	def := tool.Definition()
	applyDefaults(def, invocation.Parameters)
	if err := validateParams(def, invocation.Parameters); err != nil {
		logger.Warn("argument validation failed", "error", err)
		return &Result{
			Success:  false,
			Error:    fmt.Sprintf("%v for %q: %v", ErrValidationFailed, invocation.ToolName, err),
			Duration: time.Since(started),
		}
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	invocation.StartedAt = started
	logger.Debug("dispatching tool")

	result, err := tool.Execute(ctx, invocation.Parameters)
	if err != nil {
		logger.Warn("tool execution failed", "error", err)
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("%s timed out after %v", invocation.ToolName, timeout)
		}
		return &Result{
			Success:  false,
			Error:    msg,
			Duration: time.Since(started),
		}
	}
	if result == nil {
		return &Result{
			Success:  false,
			Error:    fmt.Sprintf("%s returned no result", invocation.ToolName),
			Duration: time.Since(started),
		}
	}

	result.Duration = time.Since(started)
	logger.Debug("tool dispatched", "success", result.Success, "duration", result.Duration)
	return result
}

// applyDefaults fills absent optional parameters with their declared
// defaults.
func applyDefaults(def ToolDefinition, params map[string]any) {
	for name, paramDef := range def.Parameters {
		if paramDef.Default == nil {
			continue
		}
		if _, ok := params[name]; !ok {
			params[name] = paramDef.Default
		}
	}
}

// validateParams validates arguments against the tool definition.
func validateParams(def ToolDefinition, params map[string]any) error {
	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			// Unknown arguments are tolerated; models add them.
			continue
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}
	return nil
}

// validateParam validates a single argument value.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{Parameter: name, Message: "required parameter is nil"}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		str, ok := value.(string)
		if !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.MinLength > 0 && len(str) < def.MinLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at least %d", def.MinLength),
			}
		}
		if def.MaxLength > 0 && len(str) > def.MaxLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at most %d", def.MaxLength),
			}
		}

	case ParamTypeInt, ParamTypeFloat:
		// JSON numbers decode as float64; native ints also accepted.
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "number",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}
		if def.Maximum != nil && num > *def.Maximum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at most %v", *def.Maximum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "object",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeArray:
		// Relaxed: typed slices also pass through decode paths.
	}

	if len(def.Enum) > 0 {
		found := false
		for _, allowed := range def.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{
				Parameter: name,
				Message:   "value not in allowed enum",
				Expected:  fmt.Sprintf("%v", def.Enum),
				Actual:    fmt.Sprintf("%v", value),
			}
		}
	}

	return nil
}
