// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"testing"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	name     string
	category ToolCategory
	priority int
}

func (t *stubTool) Name() string           { return t.name }
func (t *stubTool) Category() ToolCategory { return t.category }
func (t *stubTool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.name, Category: t.category, Priority: t.priority}
}
func (t *stubTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return &Result{Success: true}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "read_file", category: CategoryFilesystem})

	tool, ok := registry.Get("read_file")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if tool.Name() != "read_file" {
		t.Errorf("Name() = %q, want read_file", tool.Name())
	}

	if _, ok := registry.Get("missing"); ok {
		t.Error("expected missing tool to not be found")
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	registry := NewRegistry()
	registry.Register(nil)

	if registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", registry.Count())
	}
}

func TestRegistry_ReplaceMovesCategory(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "probe", category: CategoryNetwork})
	registry.Register(&stubTool{name: "probe", category: CategoryExecution})

	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", registry.Count())
	}
	if got := registry.GetByCategory(CategoryNetwork); len(got) != 0 {
		t.Errorf("old category still holds %d tools", len(got))
	}
	if got := registry.GetByCategory(CategoryExecution); len(got) != 1 {
		t.Errorf("new category holds %d tools, want 1", len(got))
	}
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "write_file", category: CategoryFilesystem})
	registry.Register(&stubTool{name: "execute_code", category: CategoryExecution})

	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("Names() length = %d, want 2", len(names))
	}
	// Sorted order.
	if names[0] != "execute_code" || names[1] != "write_file" {
		t.Errorf("Names() = %v, want sorted [execute_code write_file]", names)
	}
}

func TestRegistry_GetDefinitions_PriorityOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "low", category: CategoryExecution, priority: 10})
	registry.Register(&stubTool{name: "high", category: CategoryExecution, priority: 90})
	registry.Register(&stubTool{name: "also_high", category: CategoryExecution, priority: 90})

	defs := registry.GetDefinitions()
	if len(defs) != 3 {
		t.Fatalf("GetDefinitions() length = %d, want 3", len(defs))
	}
	if defs[0].Name != "also_high" || defs[1].Name != "high" || defs[2].Name != "low" {
		t.Errorf("unexpected order: %s, %s, %s", defs[0].Name, defs[1].Name, defs[2].Name)
	}
}

func TestRegistry_VerifierToolSet(t *testing.T) {
	registry := NewRegistry()
	RegisterVerifierTools(registry, nil)

	want := []string{
		"check_api_endpoint",
		"execute_code",
		"read_file",
		"run_command",
		"validate_test_result",
		"write_file",
	}
	names := registry.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() length = %d, want %d", len(names), len(want))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], name)
		}
	}
}
