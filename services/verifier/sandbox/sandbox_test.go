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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSandbox builds a sandbox over a temp workspace with a fake
// interpreter so creation never depends on a host Python install.
func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()

	s, err := New(t.TempDir(), Options{
		Interpreter: "/usr/bin/python3",
		Logger:      logging.New(logging.Config{Quiet: true}),
	})
	require.NoError(t, err)
	return s
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{Interpreter: "/usr/bin/python3"})
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	s := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "hello.txt"), []byte("hi"), 0644))

	content, err := s.ReadFile(context.Background(), "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", content)
}

func TestReadFile_NotFound(t *testing.T) {
	s := newTestSandbox(t)

	_, err := s.ReadFile(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestReadFile_PathViolation(t *testing.T) {
	s := newTestSandbox(t)

	tests := []string{
		"../outside.txt",
		"../../etc/passwd",
		"nested/../../escape.txt",
		"/etc/passwd",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, err := s.ReadFile(context.Background(), path)
			assert.ErrorIs(t, err, ErrPathViolation)
		})
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	s := newTestSandbox(t)

	require.NoError(t, s.WriteFile(context.Background(), "tests/test_feature.py", "def test_ok(): pass\n"))

	data, err := os.ReadFile(filepath.Join(s.Root(), "tests", "test_feature.py"))
	require.NoError(t, err)
	assert.Equal(t, "def test_ok(): pass\n", string(data))
}

func TestWriteFile_PathViolation(t *testing.T) {
	s := newTestSandbox(t)

	err := s.WriteFile(context.Background(), "../evil.py", "x")
	assert.ErrorIs(t, err, ErrPathViolation)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(s.Root()), "evil.py"))
}

func TestWriteFile_AbsolutePathInsideWorkspace(t *testing.T) {
	s := newTestSandbox(t)

	inside := filepath.Join(s.Root(), "note.txt")
	require.NoError(t, s.WriteFile(context.Background(), inside, "ok"))
	assert.FileExists(t, inside)
}

func TestResolve_RootItself(t *testing.T) {
	s := newTestSandbox(t)

	got, err := s.resolve(".")
	require.NoError(t, err)
	assert.Equal(t, s.Root(), got)
}
