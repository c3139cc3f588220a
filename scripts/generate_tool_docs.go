// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build ignore

// generate_tool_docs renders a markdown reference for the verifier tool
// set from the static registry, so the docs can never drift from the
// schemas the engine actually sees.
//
// Usage:
//
//	go run scripts/generate_tool_docs.go > docs/tool_reference.md
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/CodeVerify/services/verifier/tools"
)

func main() {
	registry := tools.NewRegistry()
	tools.RegisterVerifierTools(registry, nil)

	defs := registry.GetDefinitions()
	if len(defs) == 0 {
		fmt.Fprintln(os.Stderr, "no tools registered")
		os.Exit(1)
	}

	var b strings.Builder
	b.WriteString("# Verifier Tool Reference\n\n")
	fmt.Fprintf(&b, "Generated %s from the static tool registry.\n\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "%d tools across %d categories.\n", len(defs), len(categories(defs)))

	for _, category := range categories(defs) {
		fmt.Fprintf(&b, "\n## %s\n", titleCase(string(category)))
		for _, def := range defs {
			if def.Category != category {
				continue
			}
			writeTool(&b, def)
		}
	}

	fmt.Print(b.String())
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// categories returns the distinct categories in definition order.
func categories(defs []tools.ToolDefinition) []tools.ToolCategory {
	seen := make(map[tools.ToolCategory]bool)
	var out []tools.ToolCategory
	for _, def := range defs {
		if !seen[def.Category] {
			seen[def.Category] = true
			out = append(out, def.Category)
		}
	}
	return out
}

func writeTool(b *strings.Builder, def tools.ToolDefinition) {
	fmt.Fprintf(b, "\n### `%s`\n\n", def.Name)
	fmt.Fprintf(b, "%s\n\n", def.Description)
	if def.SideEffects {
		b.WriteString("Side effects: mutates the workspace or reaches the network.\n\n")
	}

	if len(def.Parameters) == 0 {
		b.WriteString("No parameters.\n")
		return
	}

	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("| Parameter | Type | Required | Description |\n")
	b.WriteString("|-----------|------|----------|-------------|\n")
	for _, name := range names {
		p := def.Parameters[name]
		required := "no"
		if p.Required {
			required = "yes"
		}
		desc := p.Description
		if len(p.Enum) > 0 {
			values := make([]string, 0, len(p.Enum))
			for _, v := range p.Enum {
				values = append(values, fmt.Sprintf("`%v`", v))
			}
			desc += " One of: " + strings.Join(values, ", ") + "."
		}
		if p.Default != nil {
			desc += fmt.Sprintf(" Default: `%v`.", p.Default)
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", name, p.Type, required, desc)
	}
}
