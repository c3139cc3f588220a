// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecuteCode runs a code snippet in the workspace.
//
// Description:
//
//	Python snippets run through the captured interpreter with -c.
//	JavaScript and TypeScript snippets are written to a temporary file
//	and run with the node runtime. An unsupported language is reported
//	as a failed result, not an error: the engine should see the
//	message and adjust, the same way a failing snippet would read.
//
// Inputs:
//
//	ctx - Cancellation; the per-snippet timeout is layered on top.
//	code - Source to execute.
//	language - "python", "javascript", "typescript", or "js".
//
// Outputs:
//
//	*ExecResult - Execution outcome, never nil.
//	error - Non-nil only for context cancellation.
func (s *Sandbox) ExecuteCode(ctx context.Context, code, language string) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	var result *ExecResult
	switch language {
	case "python":
		result = s.runProcess(ctx, s.root, nil, s.interpreter, "-c", code)
	case "javascript", "typescript", "js":
		result = s.runJavaScript(ctx, code)
	default:
		result = &ExecResult{
			Success:  false,
			Stderr:   fmt.Sprintf("Unsupported language: %s", language),
			ExitCode: -1,
		}
	}

	s.logger.Info("executed code",
		"language", language,
		"success", result.Success,
		"exit_code", result.ExitCode)
	return result, nil
}

// runJavaScript writes the snippet to a temp file inside the workspace
// and runs it with node. The file is removed afterwards.
func (s *Sandbox) runJavaScript(ctx context.Context, code string) *ExecResult {
	temp := filepath.Join(s.root, "temp_exec.js")
	if err := os.WriteFile(temp, []byte(code), 0644); err != nil {
		return &ExecResult{
			Success:  false,
			Stderr:   fmt.Sprintf("failed to stage snippet: %v", err),
			ExitCode: -1,
		}
	}
	defer os.Remove(temp)

	return s.runProcess(ctx, s.root, nil, s.nodeRuntime, temp)
}

// RunCommand executes a shell command in the workspace.
//
// Description:
//
//	The command is normalized first: pip, pip3, pytest, python, and
//	python3 prefixes are rewritten onto the captured interpreter so
//	installs and test runs share one environment. PYTHONPATH is set to
//	the working directory plus its first-level package directories,
//	which makes imports work when the archive carries a project root
//	folder. The working directory must stay inside the workspace.
//
// Inputs:
//
//	ctx - Cancellation; the command timeout is layered on top.
//	command - Shell command line.
//	workingDir - Directory relative to the workspace root; empty runs
//	at the root.
//
// Outputs:
//
//	*ExecResult - Command outcome, never nil.
//	error - ErrPathViolation for an escaping working directory, or
//	context cancellation.
func (s *Sandbox) RunCommand(ctx context.Context, command, workingDir string) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cwd := s.root
	if workingDir != "" {
		resolved, err := s.resolve(workingDir)
		if err != nil {
			s.logger.Warn("command rejected", "working_dir", workingDir, "error", err)
			return nil, err
		}
		cwd = resolved
	}
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		return &ExecResult{
			Success:  false,
			Stderr:   fmt.Sprintf("Working directory does not exist: %s", workingDir),
			ExitCode: -1,
		}, nil
	}

	normalized := s.normalizeCommand(command)

	env := append(os.Environ(), "PYTHONPATH="+s.pythonPath(cwd))

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	result := s.runProcess(ctx, cwd, env, "/bin/sh", "-c", normalized)

	s.logger.Info("ran command",
		"command", normalized,
		"working_dir", cwd,
		"success", result.Success,
		"exit_code", result.ExitCode)
	return result, nil
}

// normalizeCommand rewrites Python tooling invocations onto the
// captured interpreter.
func (s *Sandbox) normalizeCommand(command string) string {
	normalized := strings.TrimSpace(command)
	interp := s.interpreter

	switch {
	case strings.HasPrefix(normalized, "pip install "):
		return interp + " -m pip install " + normalized[len("pip install "):]
	case strings.HasPrefix(normalized, "pip3 install "):
		return interp + " -m pip install " + normalized[len("pip3 install "):]
	case strings.HasPrefix(normalized, "pip "):
		return interp + " -m pip " + normalized[len("pip "):]
	case strings.HasPrefix(normalized, "pip3 "):
		return interp + " -m pip " + normalized[len("pip3 "):]
	case strings.HasPrefix(normalized, "pytest "):
		return interp + " -m pytest " + normalized[len("pytest "):]
	case normalized == "pytest":
		return interp + " -m pytest"
	case strings.HasPrefix(normalized, "python -m "):
		return interp + " -m " + normalized[len("python -m "):]
	case strings.HasPrefix(normalized, "python3 -m "):
		return interp + " -m " + normalized[len("python3 -m "):]
	case strings.HasPrefix(normalized, "python "):
		return interp + " " + normalized[len("python "):]
	case strings.HasPrefix(normalized, "python3 "):
		return interp + " " + normalized[len("python3 "):]
	case normalized == "python" || normalized == "python3":
		return interp
	}
	return normalized
}

// pythonPath builds the PYTHONPATH for a command: the working
// directory plus its first-level non-hidden subdirectories, then any
// preexisting PYTHONPATH.
func (s *Sandbox) pythonPath(cwd string) string {
	dirs := []string{cwd}

	if entries, err := os.ReadDir(cwd); err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || strings.HasPrefix(name, ".") ||
				name == "__pycache__" || name == "node_modules" {
				continue
			}
			dirs = append(dirs, filepath.Join(cwd, name))
		}
	}

	path := strings.Join(dirs, string(os.PathListSeparator))
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		path += string(os.PathListSeparator) + existing
	}
	return path
}

// runProcess starts a process and converts its exit state into an
// ExecResult. Timeouts surface as a failed result with exit code -1.
func (s *Sandbox) runProcess(ctx context.Context, cwd string, env []string, name string, args ...string) *ExecResult {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Success = false
		result.ExitCode = -1
		// Keep whatever the process managed to write before the kill.
		if result.Stderr != "" {
			result.Stderr += "\n"
		}
		result.Stderr += "Execution timed out"
	default:
		result.Success = false
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}
	return result
}
