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
	"fmt"
	"strings"

	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
	"github.com/AleutianAI/CodeVerify/services/verifier/workspace"
)

// conftestSource fixes sys.path for generated pytest files. Written
// into the workspace root before the loop starts, only when the
// project has no conftest.py of its own.
const conftestSource = `"""
Auto-generated conftest.py for test path setup.
"""
import sys
import os

# Add the workspace root and its package directories to the Python path.
current_dir = os.path.dirname(os.path.abspath(__file__))
sys.path.insert(0, current_dir)

for item in os.listdir(current_dir):
    item_path = os.path.join(current_dir, item)
    if os.path.isdir(item_path) and not item.startswith('.') and item not in ['__pycache__', 'node_modules', '.git']:
        if item_path not in sys.path:
            sys.path.insert(0, item_path)
`

// EnsureConftest writes the path-setup conftest.py into the workspace
// root when the project does not already have one.
func EnsureConftest(ctx context.Context, runner tools.Runner) error {
	if _, err := runner.ReadFile(ctx, "conftest.py"); err == nil {
		return nil
	}
	return runner.WriteFile(ctx, "conftest.py", conftestSource)
}

// BuildSystemPrompt assembles the system instructions for a session.
//
// The prompt states the capability set, the verified-import workflow,
// and the import rules that follow from the project layout. The
// import guidance mirrors the PYTHONPATH the sandbox configures for
// run_command, so the instructions and the environment agree.
func BuildSystemPrompt(index *workspace.Index) string {
	var b strings.Builder

	b.WriteString(`You are a test engineer verifying that a described feature actually works in an uploaded codebase.

You have these tools:
- read_file(file_path): read a file from the workspace
- write_file(file_path, content): write a file into the workspace
- execute_code(code, language): run a code snippet and capture output
- run_command(command, working_dir): run a shell command in the workspace
- check_api_endpoint(url, method, payload, headers): probe an HTTP endpoint
- validate_test_result(passed, summary): report your final verdict

## Workflow
1. Read the entry point and the files implementing the feature to verify import paths before writing anything.
2. Write a test exercising the feature and save it with write_file (e.g. "test_generated.py").
3. Install dependencies: first "pip install -r requirements.txt" if present, then the test runner.
4. Verify the test file imports cleanly BEFORE running it: python -c "import test_generated"
5. Run the test: python -m pytest test_generated.py -v --tb=short
6. If you see "found no collectors" or import errors, fix the imports and re-run.
7. Call validate_test_result with your verdict once you have execution evidence. Never report passed=true without a successful test run.

## Common import errors
- ModuleNotFoundError: No module named 'src' -> the src folder may not exist; check the actual layout
- ImportError: cannot import name 'app' -> check the actual variable name in the file
- "found no collectors" -> the test file has import or syntax errors; verify the import first
`)

	if root := index.ProjectRoot(); root != "" {
		fmt.Fprintf(&b, `
## Project layout
All files live under a single root folder %q. Do NOT include that folder in imports; the import path is configured to start below it.
- File %s/main.py -> import as "from main import app" (NOT "from %s.main")
`, root, root, root)
	}

	if entry := index.FindEntryPoint(); entry != nil {
		fmt.Fprintf(&b, "\nThe application entry point is %s; a working import is likely: %s\n",
			entry.File, entry.ImportStatement)
	}

	b.WriteString("\nA conftest.py that fixes sys.path has been placed in the workspace root; still include sys.path setup at the top of your test file as a safety measure.\n")
	return b.String()
}

// BuildUserPrompt assembles the first user message: the feature to
// verify plus the codebase context the engine needs to orient itself.
func BuildUserPrompt(ctx context.Context, session *Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Verify this feature works:\n\n%s\n", session.Feature)

	framework := session.Index.DetectFramework()
	fmt.Fprintf(&b, "\n## Detected stack\nType: %s\nTest framework: %s\nPackage manager: %s\n",
		framework.Type, framework.TestFramework, framework.PackageManager)

	if summary := session.Index.Summary(ctx); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
	}

	if session.Seed != "" {
		b.WriteString("\n## Candidate implementation locations (advisory, verify before trusting)\n")
		b.WriteString(session.Seed)
		b.WriteString("\n")
	}

	b.WriteString("\nStart by reading the relevant files, then write and run a test, then report your verdict with validate_test_result.\n")
	return b.String()
}
