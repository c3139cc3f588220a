// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox executes reasoning-engine tool requests inside a
// confined workspace.
//
// Every filesystem path is resolved against the workspace root and
// rejected with ErrPathViolation when it escapes. The Python
// interpreter identity is captured once when the sandbox is created so
// pip installs, pytest runs, and snippet execution all hit the same
// environment. Every operation is audit-logged with its outcome.
//
// Thread Safety:
//
//	Sandbox is safe for concurrent use; it holds no mutable state
//	after New returns.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
)

var (
	// ErrPathViolation indicates a path resolved outside the workspace.
	ErrPathViolation = errors.New("path escapes workspace")

	// ErrFileNotFound indicates a read of a nonexistent file.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoInterpreter indicates no Python interpreter was found.
	ErrNoInterpreter = errors.New("no python interpreter available")
)

const (
	// DefaultExecTimeout bounds one code snippet execution.
	DefaultExecTimeout = 10 * time.Second

	// DefaultCommandTimeout bounds one shell command.
	DefaultCommandTimeout = 60 * time.Second

	// DefaultHTTPTimeout bounds one endpoint probe.
	DefaultHTTPTimeout = 10 * time.Second
)

// Options configures a Sandbox.
type Options struct {
	// Interpreter is the Python interpreter path. Empty resolves
	// python3 (then python) from PATH at creation time.
	Interpreter string

	// NodeRuntime is the node binary for javascript snippets.
	// Empty defaults to "node".
	NodeRuntime string

	// ExecTimeout bounds ExecuteCode. Zero uses DefaultExecTimeout.
	ExecTimeout time.Duration

	// CommandTimeout bounds RunCommand. Zero uses
	// DefaultCommandTimeout.
	CommandTimeout time.Duration

	// HTTPTimeout bounds CheckEndpoint. Zero uses DefaultHTTPTimeout.
	HTTPTimeout time.Duration

	// Logger receives the audit trail. Nil uses logging.Default.
	Logger *logging.Logger
}

// Sandbox confines tool execution to one workspace.
type Sandbox struct {
	root           string
	interpreter    string
	nodeRuntime    string
	execTimeout    time.Duration
	commandTimeout time.Duration
	httpTimeout    time.Duration
	httpClient     *http.Client
	logger         *logging.Logger
}

// ExecResult is the outcome of a code or command execution.
type ExecResult struct {
	// Success is true when the process exited zero.
	Success bool `json:"success"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, or a synthesized message
	// for timeouts and launch failures.
	Stderr string `json:"stderr"`

	// ExitCode is the process exit code; -1 for timeouts and launch
	// failures.
	ExitCode int `json:"exit_code"`
}

// New creates a Sandbox rooted at root.
//
// Description:
//
//	root must be an existing directory. The Python interpreter is
//	resolved once here; later normalization rewrites pip, pytest, and
//	python invocations onto it so the engine cannot drift across
//	environments mid-session.
//
// Inputs:
//
//	root - Absolute workspace directory.
//	opts - Sandbox options; zero values take defaults.
//
// Outputs:
//
//	*Sandbox - The configured sandbox.
//	error - Non-nil when root is unusable or no interpreter exists.
func New(root string, opts Options) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve the workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", root)
	}

	interpreter := opts.Interpreter
	if interpreter == "" {
		interpreter, err = resolveInterpreter()
		if err != nil {
			return nil, err
		}
	}

	node := opts.NodeRuntime
	if node == "" {
		node = "node"
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	s := &Sandbox{
		root:           abs,
		interpreter:    interpreter,
		nodeRuntime:    node,
		execTimeout:    opts.ExecTimeout,
		commandTimeout: opts.CommandTimeout,
		httpTimeout:    opts.HTTPTimeout,
		logger:         logger.With("component", "sandbox", "workspace", abs),
	}
	if s.execTimeout <= 0 {
		s.execTimeout = DefaultExecTimeout
	}
	if s.commandTimeout <= 0 {
		s.commandTimeout = DefaultCommandTimeout
	}
	if s.httpTimeout <= 0 {
		s.httpTimeout = DefaultHTTPTimeout
	}
	s.httpClient = &http.Client{Timeout: s.httpTimeout}

	return s, nil
}

// resolveInterpreter finds a Python interpreter on PATH.
func resolveInterpreter() (string, error) {
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoInterpreter
}

// Root returns the workspace root.
func (s *Sandbox) Root() string {
	return s.root
}

// Interpreter returns the captured Python interpreter path.
func (s *Sandbox) Interpreter() string {
	return s.interpreter
}

// resolve joins a workspace-relative path onto the root and rejects
// escapes. Absolute paths are allowed only when already inside the
// workspace.
func (s *Sandbox) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(strings.TrimSpace(rel))
	var target string
	if filepath.IsAbs(cleaned) {
		target = cleaned
	} else {
		target = filepath.Join(s.root, cleaned)
	}

	if target != s.root && !strings.HasPrefix(target, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrPathViolation, rel)
	}
	return target, nil
}

// ReadFile returns the content of a workspace file.
//
// Inputs:
//
//	ctx - Unused beyond cancellation symmetry with other capabilities.
//	path - Workspace-relative file path.
//
// Outputs:
//
//	string - File content.
//	error - ErrPathViolation, ErrFileNotFound, or a read failure.
func (s *Sandbox) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(path)
	if err != nil {
		s.logger.Warn("read rejected", "path", path, "error", err)
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("read miss", "path", path)
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		s.logger.Warn("read failed", "path", path, "error", err)
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}

	s.logger.Info("read file", "path", path, "bytes", len(data))
	return string(data), nil
}

// WriteFile creates or overwrites a workspace file, creating parent
// directories as needed.
//
// Inputs:
//
//	ctx - Cancellation.
//	path - Workspace-relative file path.
//	content - Full file content.
//
// Outputs:
//
//	error - ErrPathViolation or a write failure.
func (s *Sandbox) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		s.logger.Warn("write rejected", "path", path, "error", err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return fmt.Errorf("failed to create parent directories for %q: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		s.logger.Warn("write failed", "path", path, "error", err)
		return fmt.Errorf("failed to write %q: %w", path, err)
	}

	s.logger.Info("wrote file", "path", path, "bytes", len(content))
	return nil
}
