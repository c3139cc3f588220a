// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locator maps a feature description to candidate
// implementation locations in an indexed codebase.
//
// The analysis is a single JSON-mode engine call. Its output is
// advisory seed context for the orchestration loop, never ground
// truth; every entry is independently fallible.
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/CodeVerify/pkg/logging"
	"github.com/AleutianAI/CodeVerify/services/verifier/engine"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

const (
	// analysisTimeout bounds the one-shot engine call.
	analysisTimeout = 60 * time.Second

	// analysisTemperature keeps the analysis mostly deterministic.
	analysisTemperature = 0.3

	// Prompt budgets: file excerpts and structure listings are capped
	// so large codebases stay within context limits.
	maxPromptFiles    = 15
	maxFileExcerpt    = 2000
	maxStructureFiles = 20
)

var (
	// ErrEmptyFeature indicates a blank feature description.
	ErrEmptyFeature = errors.New("feature description is empty")

	// ErrBadAnalysis indicates the engine returned unparseable JSON.
	ErrBadAnalysis = errors.New("analysis response is not valid JSON")
)

// Location is one candidate implementation site.
type Location struct {
	// File is the path relative to the workspace root.
	File string `json:"file"`

	// Function is the function or method name, when known.
	Function string `json:"function,omitempty"`

	// Lines is the "start-end" line range, when known.
	Lines string `json:"lines,omitempty"`

	// Confidence is "high", "medium", or "low" when the engine flags
	// it. Each entry is independently fallible either way.
	Confidence string `json:"confidence,omitempty"`
}

// Feature is one analyzed feature with its candidate locations.
type Feature struct {
	Description string     `json:"feature_description"`
	Locations   []Location `json:"implementation_location"`
}

// Analysis is the locator's result.
type Analysis struct {
	// Features lists the analyzed features in priority order.
	Features []Feature `json:"feature_analysis"`

	// ExecutionPlan suggests how to install and run the project.
	ExecutionPlan string `json:"execution_plan_suggestion,omitempty"`
}

// SeedContext renders the analysis as seed text for a session's first
// user message.
func (a *Analysis) SeedContext() string {
	var b strings.Builder

	for _, feature := range a.Features {
		fmt.Fprintf(&b, "- %s\n", feature.Description)
		for _, loc := range feature.Locations {
			fmt.Fprintf(&b, "  - %s", loc.File)
			if loc.Function != "" {
				fmt.Fprintf(&b, ": %s", loc.Function)
			}
			if loc.Lines != "" {
				fmt.Fprintf(&b, " (lines %s)", loc.Lines)
			}
			if loc.Confidence != "" && loc.Confidence != "high" {
				fmt.Fprintf(&b, " [confidence: %s]", loc.Confidence)
			}
			b.WriteString("\n")
		}
	}
	if a.ExecutionPlan != "" {
		fmt.Fprintf(&b, "\nSuggested execution plan: %s\n", a.ExecutionPlan)
	}
	return strings.TrimSpace(b.String())
}

// Locator performs feature analysis over an indexed workspace.
//
// Thread Safety:
//
//	Locator is safe for concurrent use.
type Locator struct {
	client engine.Client
	logger *logging.Logger
}

// New creates a feature locator.
func New(client engine.Client, logger *logging.Logger) *Locator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Locator{
		client: client,
		logger: logger.With("component", "locator"),
	}
}

// Analyze locates a described feature in the indexed codebase.
//
// Inputs:
//
//	ctx - Context; the call is additionally bounded by analysisTimeout.
//	index - The codebase index. Must be non-nil and non-empty.
//	feature - The feature description. Must be non-empty.
//
// Outputs:
//
//	*Analysis - Candidate locations plus an execution-plan suggestion.
//	error - ErrEmptyFeature, ErrBadAnalysis, or an engine error.
func (l *Locator) Analyze(ctx context.Context, index *workspace.Index, feature string) (*Analysis, error) {
	if strings.TrimSpace(feature) == "" {
		return nil, ErrEmptyFeature
	}
	if index == nil || len(index.Files()) == 0 {
		return nil, errors.New("no code content provided for analysis")
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	started := time.Now()
	response, err := l.client.Complete(ctx, &engine.Request{
		SystemPrompt: "You are an expert code analyst. Analyze codebases and identify where specific features are implemented. Return structured JSON responses.",
		Messages: []engine.Message{{
			Role:    "user",
			Content: l.buildPrompt(ctx, index, feature),
		}},
		Temperature:  analysisTemperature,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("feature analysis failed: %w", err)
	}

	analysis, err := parseAnalysis(response.Content)
	if err != nil {
		return nil, err
	}
	if analysis.ExecutionPlan == "" {
		analysis.ExecutionPlan = SuggestExecutionPlan(index)
	}

	l.logger.Info("feature analysis completed",
		"features", len(analysis.Features),
		"duration", time.Since(started),
		"tokens", response.TokensUsed)
	return analysis, nil
}

// buildPrompt assembles the analysis prompt: description, summary,
// structure listing, and capped file excerpts.
func (l *Locator) buildPrompt(ctx context.Context, index *workspace.Index, feature string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Analyze the following codebase and identify where each feature from the problem description is implemented.

## Problem Description:
%s

## Codebase Summary:
%s
`, feature, index.Summary(ctx))

	structures := index.Structures(ctx)
	if len(structures) > 0 {
		b.WriteString("\n## Code Structure (Functions and Classes):\n\n")
		for i, path := range sortedKeys(structures) {
			if i >= maxStructureFiles {
				break
			}
			structure := structures[path]
			fmt.Fprintf(&b, "### %s\n", path)
			if len(structure.Functions) > 0 {
				b.WriteString("Functions:\n")
				for _, fn := range structure.Functions {
					fmt.Fprintf(&b, "  - %s (lines %d-%d)\n", fn.Name, fn.StartLine, fn.EndLine)
				}
			}
			if len(structure.Classes) > 0 {
				b.WriteString("Classes:\n")
				for _, cls := range structure.Classes {
					fmt.Fprintf(&b, "  - %s (lines %d-%d)\n", cls.Name, cls.StartLine, cls.EndLine)
				}
			}
			b.WriteString("\n")
		}
	}

	contents := index.RelevantContent(ctx, maxPromptFiles, maxFileExcerpt)
	if len(contents) > 0 {
		b.WriteString("\n## Relevant Code Files:\n\n")
		for _, path := range sortedKeys(contents) {
			fmt.Fprintf(&b, "### File: %s\n```\n%s\n```\n\n", path, contents[path])
		}
	}

	b.WriteString(`## Task:
Based on the problem description, identify all features mentioned and find where each feature is implemented in the codebase.

## Output Format:
Return a JSON object with this structure:
{
  "feature_analysis": [
    {
      "feature_description": "Description of the feature",
      "implementation_location": [
        {"file": "relative/path/to/file.py", "function": "functionName", "lines": "13-16", "confidence": "high"}
      ]
    }
  ],
  "execution_plan_suggestion": "How to install and run this project"
}

Important:
- Use paths relative to the codebase root
- Include exact function/method names and accurate line ranges
- If a feature spans multiple files, list all of them
- Flag locations you are unsure about with "confidence": "low"
`)

	return b.String()
}

// parseAnalysis decodes the engine's JSON, tolerating a fenced code
// block wrapper.
func parseAnalysis(content string) (*Analysis, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAnalysis, err)
	}
	if analysis.Features == nil {
		analysis.Features = []Feature{}
	}
	return &analysis, nil
}

// SuggestExecutionPlan derives run instructions from the project's
// manifest files. Fallback when the engine does not propose a plan.
func SuggestExecutionPlan(index *workspace.Index) string {
	manifests := make(map[string]bool)
	for path := range index.Files() {
		manifests[strings.ToLower(baseOf(path))] = true
	}

	framework := index.DetectFramework()

	switch {
	case manifests["package.json"]:
		steps := []string{"1. Install dependencies: `npm install`"}
		if framework.Type == "graphql" {
			steps = append(steps,
				"2. Start the development server: `npm run start:dev` or `npm start`",
				"3. The GraphQL API will be available at http://localhost:3000/graphql (or the configured port)")
		} else {
			steps = append(steps, "2. Start the server: `npm start` or check package.json for run scripts")
		}
		return strings.Join(steps, " ")
	case manifests["requirements.txt"]:
		return "1. Install dependencies: `pip install -r requirements.txt` 2. Run the application: `python main.py` or `python app.py`"
	case manifests["pom.xml"]:
		return "1. Build the project: `mvn clean install` 2. Run the application: `mvn spring-boot:run` or `java -jar target/*.jar`"
	case manifests["go.mod"]:
		return "1. Install dependencies: `go mod download` 2. Run the application: `go run main.go`"
	default:
		return "1. Check the codebase for setup instructions 2. Install necessary dependencies 3. Run the main entry point file"
	}
}

func baseOf(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
