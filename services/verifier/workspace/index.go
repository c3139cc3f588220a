// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// manifestNames are dependency manifests treated as config files and
// used for framework and execution-plan detection.
var manifestNames = map[string]bool{
	"package.json":     true,
	"requirements.txt": true,
	"pom.xml":          true,
	"go.mod":           true,
	"cargo.toml":       true,
}

// extTypes maps file extensions to index types.
var extTypes = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".json": "json",
	".md":   "markdown",
	".txt":  "text",
	".yml":  "yaml",
	".yaml": "yaml",
	".xml":  "xml",
	".html": "html",
	".css":  "css",
	".java": "java",
	".go":   "go",
	".rs":   "rust",
	".cpp":  "cpp",
	".c":    "c",
	".h":    "c",
}

// Index is a read-only view over an extracted workspace: the file tree
// keyed by slash-separated relative paths, each mapped to a coarse file
// type ("python", "javascript", "config", ...).
//
// Thread Safety:
//
//	Index is immutable after NewIndex returns and safe for concurrent
//	reads.
type Index struct {
	root  string
	files map[string]string
}

// EntryPoint describes the file a generated test should import the
// application from.
type EntryPoint struct {
	// File is the workspace-relative path, e.g. "src/main.py".
	File string `json:"file"`

	// ImportPath is the dotted module path relative to the import
	// root, e.g. "src.main".
	ImportPath string `json:"import_path"`

	// ImportStatement is a ready-to-use import line.
	ImportStatement string `json:"import_statement"`
}

// Framework summarizes the detected project stack.
type Framework struct {
	// Type is "rest", "graphql", or "unknown".
	Type string `json:"type"`

	// TestFramework is "pytest", "jest", "mocha", or "unknown".
	TestFramework string `json:"test_framework"`

	// PackageManager is "pip", "npm", or "unknown".
	PackageManager string `json:"package_manager"`
}

// NewIndex walks the extracted workspace rooted at root and builds the
// file tree.
//
// Description:
//
//	Hidden files, hidden directories, __pycache__, node_modules, and
//	.git are skipped. Paths are stored relative to root with forward
//	slashes regardless of platform.
//
// Inputs:
//
//	root - Absolute path of the extracted workspace.
//
// Outputs:
//
//	*Index - The built index.
//	error - Non-nil if root cannot be walked.
func NewIndex(root string) (*Index, error) {
	files := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") || name == "__pycache__" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = fileType(name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index workspace %q: %w", root, err)
	}

	return &Index{root: root, files: files}, nil
}

// fileType classifies a file by extension, with dependency manifests
// forced to "config".
func fileType(name string) string {
	if manifestNames[strings.ToLower(name)] {
		return "config"
	}
	if t, ok := extTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "unknown"
}

// Root returns the absolute workspace root.
func (ix *Index) Root() string {
	return ix.root
}

// Files returns a copy of the file tree.
func (ix *Index) Files() map[string]string {
	out := make(map[string]string, len(ix.files))
	for k, v := range ix.files {
		out[k] = v
	}
	return out
}

// Paths returns all indexed paths in sorted order.
func (ix *Index) Paths() []string {
	out := make([]string, 0, len(ix.files))
	for p := range ix.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ProjectRoot returns the single top-level directory that contains
// every indexed file, or "" when files live at multiple top levels.
//
// Archives created by zipping a folder have this shape; imports and
// PYTHONPATH must then be computed relative to that folder, not the
// extraction root.
func (ix *Index) ProjectRoot() string {
	tops := make(map[string]bool)
	for p := range ix.files {
		parts := strings.SplitN(p, "/", 2)
		if len(parts) > 1 {
			tops[parts[0]] = true
		} else {
			// A top-level file means there is no single project folder.
			return ""
		}
	}
	if len(tops) != 1 {
		return ""
	}
	for top := range tops {
		return top
	}
	return ""
}

// FindEntryPoint locates the application entry module.
//
// Description:
//
//	Candidate files named main.py or app.py are matched against a
//	priority order (main.py before app.py, shallower before deeper,
//	src/ and app/ variants last). When a project root folder exists it
//	prefixes every candidate and is stripped from the import path,
//	since the import root is the project folder itself.
//
// Outputs:
//
//	*EntryPoint - The best candidate, or nil when none exists.
func (ix *Index) FindEntryPoint() *EntryPoint {
	var candidates []string
	for p := range ix.files {
		base := strings.ToLower(baseName(p))
		if base == "main.py" || base == "app.py" {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	priority := []string{
		"main.py", "app.py",
		"src/main.py", "src/app.py",
		"app/main.py", "app/app.py",
	}
	projectRoot := ix.ProjectRoot()
	if projectRoot != "" {
		for i, p := range priority {
			priority[i] = projectRoot + "/" + p
		}
	}

	for _, want := range priority {
		for _, candidate := range candidates {
			if candidate != want && !strings.HasSuffix(candidate, "/"+want) {
				continue
			}
			importFile := candidate
			if projectRoot != "" && strings.HasPrefix(candidate, projectRoot+"/") {
				// PYTHONPATH includes the project folder, so imports
				// start below it.
				importFile = candidate[len(projectRoot)+1:]
			}
			importPath := strings.ReplaceAll(strings.TrimSuffix(importFile, ".py"), "/", ".")
			return &EntryPoint{
				File:            candidate,
				ImportPath:      importPath,
				ImportStatement: fmt.Sprintf("from %s import app", importPath),
			}
		}
	}
	return nil
}

// DetectFramework infers the package manager, test framework, and API
// style from indexed paths.
func (ix *Index) DetectFramework() Framework {
	info := Framework{
		Type:           "unknown",
		TestFramework:  "unknown",
		PackageManager: "unknown",
	}

	var hasPackageJSON, hasRequirements bool
	var hasJest, hasMocha, hasPytest bool
	for p := range ix.files {
		lower := strings.ToLower(p)
		base := baseName(lower)
		switch base {
		case "package.json":
			hasPackageJSON = true
		case "requirements.txt":
			hasRequirements = true
		}
		if strings.Contains(lower, "jest") {
			hasJest = true
		}
		if strings.Contains(lower, "mocha") {
			hasMocha = true
		}
		if strings.Contains(lower, "pytest") {
			hasPytest = true
		}

		switch {
		case strings.Contains(lower, "graphql") || strings.Contains(lower, "resolver"):
			info.Type = "graphql"
		case info.Type == "unknown" &&
			(strings.Contains(lower, "express") || strings.Contains(lower, "router") ||
				strings.Contains(lower, "flask") || strings.Contains(lower, "fastapi")):
			info.Type = "rest"
		}
	}

	switch {
	case hasPackageJSON:
		info.PackageManager = "npm"
		switch {
		case hasJest:
			info.TestFramework = "jest"
		case hasMocha:
			info.TestFramework = "mocha"
		default:
			info.TestFramework = "jest"
		}
	case hasRequirements:
		info.PackageManager = "pip"
		info.TestFramework = "pytest"
		_ = hasPytest
	}

	return info
}

// Summary renders a bounded plain-text overview of the workspace for
// prompt assembly: file type counts, key files, and (when scanning
// succeeds) function and class totals.
//
// Inputs:
//
//	ctx - Bounds structure scanning time.
//
// Outputs:
//
//	string - Human-readable summary, never empty.
func (ix *Index) Summary(ctx context.Context) string {
	var b strings.Builder

	typeCounts := make(map[string]int)
	for _, t := range ix.files {
		typeCounts[t]++
	}

	b.WriteString("## Codebase Overview\n")
	fmt.Fprintf(&b, "Total files: %d\n", len(ix.files))
	b.WriteString("\nFile types:\n")
	types := make([]string, 0, len(typeCounts))
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "  - %s: %d\n", t, typeCounts[t])
	}

	keyNames := map[string]bool{
		"package.json": true, "requirements.txt": true, "pom.xml": true,
		"go.mod": true, "cargo.toml": true, "main.py": true, "app.py": true,
		"index.js": true, "index.ts": true, "server.js": true, "server.ts": true,
	}
	var keyFiles []string
	for _, p := range ix.Paths() {
		if keyNames[strings.ToLower(baseName(p))] {
			keyFiles = append(keyFiles, p)
		}
	}
	if len(keyFiles) > 0 {
		b.WriteString("\nKey files:\n")
		if len(keyFiles) > 10 {
			keyFiles = keyFiles[:10]
		}
		for _, p := range keyFiles {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}

	structures := ix.Structures(ctx)
	if len(structures) > 0 {
		var functions, classes int
		for _, s := range structures {
			functions += len(s.Functions)
			classes += len(s.Classes)
		}
		b.WriteString("\nCode structure:\n")
		fmt.Fprintf(&b, "  - Total functions: %d\n", functions)
		fmt.Fprintf(&b, "  - Total classes: %d\n", classes)
		fmt.Fprintf(&b, "  - Files with code: %d\n", len(structures))
	}

	return b.String()
}

// Structures scans every indexed Python, JavaScript, and TypeScript
// file and returns the per-file symbol structure, keyed by relative
// path. Files that fail to read or parse are skipped.
func (ix *Index) Structures(ctx context.Context) map[string]*FileStructure {
	scanner := NewScanner()
	out := make(map[string]*FileStructure)

	for _, p := range ix.Paths() {
		t := ix.files[p]
		if t != "python" && t != "javascript" && t != "typescript" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(ix.root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}
		structure, err := scanner.Scan(ctx, content, p)
		if err != nil {
			continue
		}
		if len(structure.Functions) > 0 || len(structure.Classes) > 0 {
			out[p] = structure
		}
	}
	return out
}

// RelevantContent returns the contents of the most useful files for
// feature location: files containing code symbols plus dependency
// manifests and entry points, each truncated to maxSize characters.
//
// Inputs:
//
//	ctx - Bounds structure scanning time.
//	maxFiles - Maximum number of files returned.
//	maxSize - Maximum characters per file; longer content is truncated
//	with a trailing marker.
//
// Outputs:
//
//	map[string]string - Relative path to (possibly truncated) content.
func (ix *Index) RelevantContent(ctx context.Context, maxFiles, maxSize int) map[string]string {
	relevant := make(map[string]bool)
	for p := range ix.Structures(ctx) {
		relevant[p] = true
	}

	keyNames := map[string]bool{
		"package.json": true, "requirements.txt": true, "pom.xml": true,
		"go.mod": true, "cargo.toml": true, "dockerfile": true,
		"docker-compose.yml": true, "readme.md": true, "main.py": true,
		"app.py": true, "index.js": true, "index.ts": true,
		"server.js": true, "server.ts": true,
	}
	for p := range ix.files {
		if keyNames[strings.ToLower(baseName(p))] {
			relevant[p] = true
		}
	}

	paths := make([]string, 0, len(relevant))
	for p := range relevant {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if maxFiles > 0 && len(paths) > maxFiles {
		paths = paths[:maxFiles]
	}

	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(filepath.Join(ix.root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}
		text := string(content)
		if maxSize > 0 && len(text) > maxSize {
			text = text[:maxSize] + "\n... (truncated)"
		}
		out[p] = text
	}
	return out
}

// baseName is filepath.Base for slash-separated index paths.
func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
