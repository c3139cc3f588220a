// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

func testIndex(t *testing.T, files map[string]string) *workspace.Index {
	t.Helper()

	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	index, err := workspace.NewIndex(root)
	require.NoError(t, err)
	return index
}

const analysisJSON = `{
  "feature_analysis": [
    {
      "feature_description": "User listing endpoint",
      "implementation_location": [
        {"file": "main.py", "function": "get_users", "lines": "10-24"}
      ]
    }
  ],
  "execution_plan_suggestion": "pip install -r requirements.txt, then python main.py"
}`

func TestLocator_Analyze(t *testing.T) {
	mock := engine.NewMockClient().QueueFinalResponse(analysisJSON)
	index := testIndex(t, map[string]string{
		"main.py":          "def get_users():\n    return []\n",
		"requirements.txt": "flask\n",
	})

	analysis, err := New(mock, nil).Analyze(context.Background(), index, "list users")
	require.NoError(t, err)

	require.Len(t, analysis.Features, 1)
	assert.Equal(t, "User listing endpoint", analysis.Features[0].Description)
	require.Len(t, analysis.Features[0].Locations, 1)
	assert.Equal(t, "main.py", analysis.Features[0].Locations[0].File)
	assert.Equal(t, "get_users", analysis.Features[0].Locations[0].Function)
	assert.Contains(t, analysis.ExecutionPlan, "pip install")

	request := mock.LastRequest()
	require.NotNil(t, request)
	assert.True(t, request.JSONResponse)
	assert.InDelta(t, 0.3, float64(request.Temperature), 0.001)
	assert.Contains(t, request.Messages[0].Content, "list users")
	assert.Contains(t, request.Messages[0].Content, "main.py")
}

func TestLocator_AnalyzeTolerantOfFencedJSON(t *testing.T) {
	mock := engine.NewMockClient().QueueFinalResponse("```json\n" + analysisJSON + "\n```")
	index := testIndex(t, map[string]string{"main.py": "x = 1\n"})

	analysis, err := New(mock, nil).Analyze(context.Background(), index, "list users")
	require.NoError(t, err)
	assert.Len(t, analysis.Features, 1)
}

func TestLocator_AnalyzeBadJSON(t *testing.T) {
	mock := engine.NewMockClient().QueueFinalResponse("the feature lives in main.py")
	index := testIndex(t, map[string]string{"main.py": "x = 1\n"})

	_, err := New(mock, nil).Analyze(context.Background(), index, "list users")
	assert.True(t, errors.Is(err, ErrBadAnalysis))
}

func TestLocator_AnalyzeMissingFeatureListDefaults(t *testing.T) {
	mock := engine.NewMockClient().QueueFinalResponse(`{"execution_plan_suggestion": "npm start"}`)
	index := testIndex(t, map[string]string{"index.js": "module.exports = {}\n"})

	analysis, err := New(mock, nil).Analyze(context.Background(), index, "anything")
	require.NoError(t, err)
	assert.NotNil(t, analysis.Features)
	assert.Empty(t, analysis.Features)
}

func TestLocator_AnalyzeEmptyFeature(t *testing.T) {
	index := testIndex(t, map[string]string{"main.py": "x = 1\n"})

	_, err := New(engine.NewMockClient(), nil).Analyze(context.Background(), index, "   ")
	assert.True(t, errors.Is(err, ErrEmptyFeature))
}

func TestLocator_FillsExecutionPlanHeuristically(t *testing.T) {
	response := `{"feature_analysis": []}`
	mock := engine.NewMockClient().QueueFinalResponse(response)
	index := testIndex(t, map[string]string{
		"app.py":           "app = None\n",
		"requirements.txt": "fastapi\n",
	})

	analysis, err := New(mock, nil).Analyze(context.Background(), index, "health check")
	require.NoError(t, err)
	assert.Contains(t, analysis.ExecutionPlan, "pip install -r requirements.txt")
}

func TestSuggestExecutionPlan(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "node",
			files: map[string]string{"package.json": "{}", "index.js": "x"},
			want:  "npm install",
		},
		{
			name:  "python",
			files: map[string]string{"requirements.txt": "flask", "main.py": "x = 1"},
			want:  "pip install",
		},
		{
			name:  "maven",
			files: map[string]string{"pom.xml": "<project/>", "src/Main.java": "class Main {}"},
			want:  "mvn clean install",
		},
		{
			name:  "go",
			files: map[string]string{"go.mod": "module x", "main.go": "package main"},
			want:  "go run main.go",
		},
		{
			name:  "unknown",
			files: map[string]string{"README.md": "hello"},
			want:  "Check the codebase",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := testIndex(t, tt.files)
			assert.Contains(t, SuggestExecutionPlan(index), tt.want)
		})
	}
}

func TestAnalysis_SeedContext(t *testing.T) {
	analysis := &Analysis{
		Features: []Feature{{
			Description: "User listing endpoint",
			Locations: []Location{
				{File: "main.py", Function: "get_users", Lines: "10-24"},
				{File: "routes.py", Confidence: "low"},
			},
		}},
		ExecutionPlan: "python main.py",
	}

	seed := analysis.SeedContext()
	assert.Contains(t, seed, "- User listing endpoint")
	assert.Contains(t, seed, "main.py: get_users (lines 10-24)")
	assert.Contains(t, seed, "routes.py [confidence: low]")
	assert.Contains(t, seed, "Suggested execution plan: python main.py")
}
