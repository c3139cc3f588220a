// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

func TestBuildSystemPrompt_ProjectRootGuidance(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "myapp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "myapp", "main.py"),
		[]byte("app = object()\n"), 0o644))

	index, err := workspace.NewIndex(root)
	require.NoError(t, err)

	prompt := BuildSystemPrompt(index)

	assert.Contains(t, prompt, "validate_test_result")
	assert.Contains(t, prompt, `"myapp"`)
	assert.Contains(t, prompt, "Do NOT include that folder in imports")
	assert.Contains(t, prompt, "myapp/main.py")
}

func TestBuildSystemPrompt_FlatLayoutOmitsRootNote(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"),
		[]byte("app = object()\n"), 0o644))

	index, err := workspace.NewIndex(root)
	require.NoError(t, err)

	prompt := BuildSystemPrompt(index)
	assert.NotContains(t, prompt, "single root folder")
	assert.Contains(t, prompt, "entry point is app.py")
}

func TestBuildUserPrompt(t *testing.T) {
	session := newTestSession(t)
	session.Seed = "- main.py: get_users (lines 10-24)"

	prompt := BuildUserPrompt(context.Background(), session)

	assert.Contains(t, prompt, session.Feature)
	assert.Contains(t, prompt, "pytest")
	assert.Contains(t, prompt, "get_users (lines 10-24)")
	assert.Contains(t, prompt, "Codebase Overview")
}

func TestEnsureConftest_PreservesExisting(t *testing.T) {
	runner := newStubRunner()
	runner.files["conftest.py"] = "# hand written\n"

	require.NoError(t, EnsureConftest(context.Background(), runner))
	assert.Equal(t, "# hand written\n", runner.files["conftest.py"])
}

func TestLooksLikeTest(t *testing.T) {
	tests := []struct {
		path    string
		content string
		want    bool
	}{
		{"test_generated.py", "assert 1", true},
		{"src/feature_test.go", "x", true},
		{"app.spec.ts", "x", true},
		{"notes.md", "import pytest\n", true},
		{"main.py", "def test_users(): pass", true},
		{"main.py", "app = Flask(__name__)", false},
		{"requirements.txt", "flask", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeTest(tt.path, tt.content))
		})
	}
}

func TestExtractFencedCode(t *testing.T) {
	content := "Here is a snippet:\n```python\nprint('small')\n```\nand the test:\n```python\nimport pytest\n\ndef test_big(): pass\n```\n"

	code := extractFencedCode(content)
	assert.Contains(t, code, "def test_big")
	assert.NotContains(t, code, "small")

	assert.Empty(t, extractFencedCode("no code here"))
}
