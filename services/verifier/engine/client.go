// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine provides the reasoning-engine client used to drive
// verification sessions.
//
// The engine is an external LLM reached over an OpenAI-compatible API.
// This package defines the provider-neutral Client interface plus the
// request/response model; the orchestration loop depends only on the
// interface, so tests inject MockClient.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

var (
	// ErrEngineUnavailable indicates a transport-level failure after
	// retries were exhausted. Sessions terminate FATAL on it rather
	// than recording a test failure.
	ErrEngineUnavailable = errors.New("reasoning engine unavailable")

	// ErrEmptyResponse indicates the engine returned no choices.
	ErrEmptyResponse = errors.New("reasoning engine returned an empty response")
)

// Client is the reasoning-engine interface.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request to the engine and returns its response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The engine response
	//   error - ErrEngineUnavailable (possibly wrapped) for transport
	//   failures, or a context error
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openai", "mock").
	Name() string

	// Model returns the model in use.
	Model() string
}

// Request is a completion request to the engine.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history in order.
	Messages []Message `json:"messages"`

	// Tools defines the capabilities offered for this request.
	Tools []tools.ToolDefinition `json:"tools,omitempty"`

	// MaxTokens limits the response length. Zero uses the provider
	// default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float32 `json:"temperature,omitempty"`

	// JSONResponse requests a JSON-object response format. Used by the
	// feature locator.
	JSONResponse bool `json:"json_response,omitempty"`
}

// Message is one conversation turn on the wire.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls are tool invocations (assistant messages only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the engine.
type ToolCall struct {
	// ID uniquely identifies the call within the conversation.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object.
	Arguments string `json:"arguments"`
}

// Response is an engine response.
type Response struct {
	// Content is the assistant text, empty when only tools were
	// called.
	Content string `json:"content"`

	// ToolCalls are the tool invocations the engine requested, in
	// order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// StopReason is "end", "tool_use", "max_tokens", or
	// "stop_sequence".
	StopReason string `json:"stop_reason"`

	// TokensUsed is the total token count (input + output).
	TokensUsed int `json:"tokens_used"`

	// InputTokens and OutputTokens break the total down.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Duration is the round-trip time.
	Duration time.Duration `json:"duration"`

	// Model generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response requests tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
