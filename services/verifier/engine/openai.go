// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/config"
	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

// OpenAIClient talks to an OpenAI-compatible chat completion API.
//
// Description:
//
//	Transport failures are retried with exponential backoff up to the
//	configured limit, then wrapped in ErrEngineUnavailable so callers
//	can distinguish engine outage from a test failure. A shared rate
//	limiter spaces requests across concurrent sessions.
//
// Thread Safety:
//
//	OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	maxRetries     int
	retryBackoff   time.Duration
	requestTimeout time.Duration
	limiter        *rate.Limiter
	logger         *logging.Logger
}

// NewOpenAIClient creates an engine client from configuration.
//
// Inputs:
//
//	cfg - Engine configuration. APIKey must be set.
//	logger - Logger; nil uses logging.Default.
//
// Outputs:
//
//	*OpenAIClient - The configured client.
//	error - Non-nil when the API key is missing.
func NewOpenAIClient(cfg config.EngineConfig, logger *logging.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("engine API key is not configured")
	}
	if logger == nil {
		logger = logging.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		maxRetries:     cfg.MaxRetries,
		retryBackoff:   backoff,
		requestTimeout: cfg.RequestTimeout,
		limiter:        limiter,
		logger:         logger.With("component", "engine", "model", cfg.Model),
	}, nil
}

// Complete implements the Client interface.
func (c *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := c.buildChatRequest(request)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBackoff << (attempt - 1)
			c.logger.Warn("retrying engine call",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.complete(ctx, req)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		// Schema-level failures will not improve with retries.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != 429 {
			break
		}
	}

	c.logger.Error("engine call failed after retries", "retries", c.maxRetries, "error", lastErr)
	return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, lastErr)
}

// complete performs one request attempt.
func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:      choice.Message.Content,
		StopReason:   stopReason(choice.FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(started),
		Model:        resp.Model,
	}
	for _, call := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	c.logger.Debug("engine call completed",
		"stop_reason", response.StopReason,
		"tool_calls", len(response.ToolCalls),
		"tokens", response.TokensUsed,
		"duration", response.Duration)
	return response, nil
}

// buildChatRequest converts the provider-neutral request to the wire
// format.
func (c *OpenAIClient) buildChatRequest(request *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}
	for _, msg := range request.Messages {
		wire := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		messages = append(messages, wire)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: request.Temperature,
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	if request.JSONResponse {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	for _, def := range request.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  FunctionSchema(def),
			},
		})
	}
	return req
}

// stopReason maps provider finish reasons onto the neutral vocabulary.
func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_use"
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonStop:
		return "end"
	default:
		return string(reason)
	}
}

// FunctionSchema renders a tool definition as a JSON-schema object for
// the chat completion API.
func FunctionSchema(def tools.ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	var required []string

	for name, param := range def.Parameters {
		prop := map[string]any{
			"type":        string(param.Type),
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[name] = prop

		if param.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Name implements the Client interface.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Model implements the Client interface.
func (c *OpenAIClient) Model() string {
	return c.model
}
