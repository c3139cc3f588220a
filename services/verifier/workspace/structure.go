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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const (
	// DefaultScanMaxFileSize is the largest source file Scan accepts.
	DefaultScanMaxFileSize = 10 * 1024 * 1024

	// scanWarnFileSize triggers a warning log for slow parses.
	scanWarnFileSize = 1024 * 1024
)

var (
	// ErrScanFileTooLarge indicates the file exceeds the scanner limit.
	ErrScanFileTooLarge = errors.New("file exceeds maximum size")

	// ErrScanInvalidContent indicates the content is not valid UTF-8.
	ErrScanInvalidContent = errors.New("invalid file content")

	// ErrScanUnsupportedLanguage indicates no grammar covers the file.
	ErrScanUnsupportedLanguage = errors.New("unsupported source language")
)

// Symbol is a named declaration with a 1-based line range.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// FileStructure holds the functions and classes found in one file.
type FileStructure struct {
	FilePath  string   `json:"file_path"`
	Language  string   `json:"language"`
	Functions []Symbol `json:"functions"`
	Classes   []Symbol `json:"classes"`
	Errors    []string `json:"errors,omitempty"`
}

// ScannerOption configures a Scanner instance.
type ScannerOption func(*Scanner)

// WithScanMaxFileSize sets the maximum file size the scanner accepts.
func WithScanMaxFileSize(bytes int64) ScannerOption {
	return func(s *Scanner) {
		if bytes > 0 {
			s.maxFileSize = bytes
		}
	}
}

// Scanner extracts function and class declarations from Python,
// JavaScript, and TypeScript sources using tree-sitter.
//
// Description:
//
//	Parsing is error tolerant: syntactically broken files still yield
//	the symbols tree-sitter can recover, with a note in Errors. Each
//	Scan call creates its own tree-sitter parser instance.
//
// Thread Safety:
//
//	Scanner instances are safe for concurrent use.
type Scanner struct {
	maxFileSize int64
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{maxFileSize: DefaultScanMaxFileSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan parses content and extracts its declaration structure.
//
// Inputs:
//
//	ctx - Bounds parse time; tree-sitter checks it between phases.
//	content - Raw file bytes. Must be valid UTF-8.
//	filePath - Slash-separated relative path; the extension selects
//	the grammar.
//
// Outputs:
//
//	*FileStructure - Extracted symbols; may carry Errors entries for
//	partially parsed files.
//	error - Non-nil for ErrScanFileTooLarge, ErrScanInvalidContent,
//	ErrScanUnsupportedLanguage, context errors, or parser failures.
func (s *Scanner) Scan(ctx context.Context, content []byte, filePath string) (*FileStructure, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled before start: %w", err)
	}
	if int64(len(content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrScanFileTooLarge, len(content), s.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrScanInvalidContent)
	}
	if len(content) > scanWarnFileSize {
		slog.Warn("scanning large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	language, lang, err := grammarFor(filePath)
	if err != nil {
		return nil, err
	}

	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	structure := &FileStructure{
		FilePath:  filePath,
		Language:  language,
		Functions: make([]Symbol, 0),
		Classes:   make([]Symbol, 0),
	}

	root := tree.RootNode()
	if root == nil {
		structure.Errors = append(structure.Errors, "tree-sitter returned nil root node")
		return structure, nil
	}
	if root.HasError() {
		structure.Errors = append(structure.Errors, "source contains syntax errors")
	}

	collectSymbols(root, content, structure)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled after extraction: %w", err)
	}
	return structure, nil
}

// grammarFor selects the tree-sitter grammar by file extension.
func grammarFor(filePath string) (string, *sitter.Language, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".py":
		return "python", python.GetLanguage(), nil
	case ".js", ".jsx":
		return "javascript", javascript.GetLanguage(), nil
	case ".ts", ".tsx":
		return "typescript", typescript.GetLanguage(), nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrScanUnsupportedLanguage, filePath)
	}
}

// collectSymbols walks the tree and records declarations.
//
// Python function_definition and JavaScript/TypeScript function and
// method declarations become Functions; class definitions become
// Classes. Nested declarations are included, matching how a feature
// locator searches for any named unit.
func collectSymbols(node *sitter.Node, content []byte, structure *FileStructure) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "function_definition", "function_declaration",
			"generator_function_declaration", "method_definition":
			if sym, ok := symbolFrom(child, content, "function"); ok {
				structure.Functions = append(structure.Functions, sym)
			}
		case "class_definition", "class_declaration":
			if sym, ok := symbolFrom(child, content, "class"); ok {
				structure.Classes = append(structure.Classes, sym)
			}
		case "lexical_declaration", "variable_declaration":
			// const handler = () => {...} and friends.
			for _, sym := range arrowFunctions(child, content) {
				structure.Functions = append(structure.Functions, sym)
			}
		}

		collectSymbols(child, content, structure)
	}
}

// symbolFrom builds a Symbol from a declaration node's name field.
func symbolFrom(node *sitter.Node, content []byte, kind string) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	return Symbol{
		Name:      string(content[nameNode.StartByte():nameNode.EndByte()]),
		Kind:      kind,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
	}, true
}

// arrowFunctions extracts declarators whose value is an arrow or
// anonymous function expression.
func arrowFunctions(node *sitter.Node, content []byte) []Symbol {
	var out []Symbol
	for i := 0; i < int(node.NamedChildCount()); i++ {
		declarator := node.NamedChild(i)
		if declarator == nil || declarator.Type() != "variable_declarator" {
			continue
		}
		value := declarator.ChildByFieldName("value")
		if value == nil {
			continue
		}
		if value.Type() != "arrow_function" && value.Type() != "function_expression" && value.Type() != "function" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		out = append(out, Symbol{
			Name:      string(content[nameNode.StartByte():nameNode.EndByte()]),
			Kind:      "function",
			StartLine: int(node.StartPoint().Row + 1),
			EndLine:   int(node.EndPoint().Row + 1),
		})
	}
	return out
}
