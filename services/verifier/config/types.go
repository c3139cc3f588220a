// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates verifier configuration.
//
// Configuration is read from a YAML file with environment variable
// overrides for the reasoning-engine credentials (OPENAI_API_KEY,
// OPENAI_MODEL, OPENAI_BASE_URL). A default file is written on first
// run so a fresh checkout works with only the API key exported.
package config

import "time"

// Config is the root verifier configuration.
type Config struct {
	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server"`

	// Engine configures the reasoning-engine client.
	Engine EngineConfig `yaml:"engine"`

	// Sandbox configures per-capability execution bounds.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Session configures orchestration budgets.
	Session SessionConfig `yaml:"session"`

	// Workspace configures upload extraction.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the gin HTTP server.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// EngineConfig configures the OpenAI-compatible reasoning engine.
type EngineConfig struct {
	// APIKey authenticates against the engine. Overridden by
	// OPENAI_API_KEY; never written to the config file.
	APIKey string `yaml:"-" validate:"required"`

	// Model is the chat model name. Overridden by OPENAI_MODEL.
	Model string `yaml:"model" validate:"required"`

	// BaseURL points at an OpenAI-compatible endpoint. Overridden by
	// OPENAI_BASE_URL. Empty uses the provider default.
	BaseURL string `yaml:"base_url"`

	// MaxRetries bounds transport-error retries per engine call.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// RetryBackoff is the base delay between retries (doubled each try).
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RequestTimeout bounds a single engine round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RequestsPerMinute rate-limits engine calls across sessions.
	// Zero disables limiting.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`
}

// SandboxConfig bounds sandbox capabilities.
type SandboxConfig struct {
	// ExecTimeout bounds one execute_code invocation.
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	// CommandTimeout bounds one run_command invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// HTTPTimeout bounds one check_api_endpoint invocation.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// NodeRuntime is the node binary used for javascript snippets.
	NodeRuntime string `yaml:"node_runtime"`
}

// SessionConfig bounds one orchestration session.
type SessionConfig struct {
	// MaxTurns is the maximum number of engine calls per session.
	MaxTurns int `yaml:"max_turns" validate:"gte=1"`

	// Deadline is the wall-clock budget for a whole session.
	Deadline time.Duration `yaml:"deadline"`

	// MaxToolCallsPerTurn caps tool calls dispatched from one response.
	MaxToolCallsPerTurn int `yaml:"max_tool_calls_per_turn" validate:"gte=1"`
}

// WorkspaceConfig configures upload handling.
type WorkspaceConfig struct {
	// Root is the directory under which per-session workspaces live.
	Root string `yaml:"root" validate:"required"`

	// MaxUploadBytes caps the accepted archive size.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"gt=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns production-ready defaults. The engine API key
// is intentionally absent; it must come from the environment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Engine: EngineConfig{
			Model:             "gpt-4o-mini",
			MaxRetries:        3,
			RetryBackoff:      500 * time.Millisecond,
			RequestTimeout:    120 * time.Second,
			RequestsPerMinute: 60,
		},
		Sandbox: SandboxConfig{
			ExecTimeout:    10 * time.Second,
			CommandTimeout: 60 * time.Second,
			HTTPTimeout:    10 * time.Second,
			NodeRuntime:    "node",
		},
		Session: SessionConfig{
			MaxTurns:            10,
			Deadline:            10 * time.Minute,
			MaxToolCallsPerTurn: 5,
		},
		Workspace: WorkspaceConfig{
			Root:           "~/.codeverify/workspaces",
			MaxUploadBytes: 50 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
