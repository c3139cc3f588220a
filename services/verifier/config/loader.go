// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads the config file at path, applies environment overrides,
// and validates the result.
//
// Description:
//
//	If the file does not exist it is created with defaults first, so a
//	fresh install only needs OPENAI_API_KEY exported. Path may be empty,
//	in which case ~/.codeverify/codeverify.yaml is used.
//
// Inputs:
//
//	path - Config file path, or "" for the default location.
//
// Outputs:
//
//	*Config - The loaded, validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not find the user's home directory: %w", err)
		}
		path = filepath.Join(home, ".codeverify", "codeverify.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies the environment variables the original
// deployment relies on. The API key additionally falls back to a
// container secret file, matching how the LLM service reads it.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Engine.APIKey = key
	} else if cfg.Engine.APIKey == "" {
		if data, err := os.ReadFile("/run/secrets/openai_api_key"); err == nil {
			cfg.Engine.APIKey = strings.TrimSpace(string(data))
		}
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Engine.Model = model
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.Engine.BaseURL = base
	}
}

// writeDefault creates the config directory and writes defaults.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write the default config: %w", err)
	}
	return nil
}

// ExpandRoot resolves ~ in the workspace root.
//
// Inputs:
//
//	root - Workspace root, possibly starting with ~.
//
// Outputs:
//
//	string - Absolute root with ~ expanded.
func ExpandRoot(root string) string {
	if !strings.HasPrefix(root, "~") {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return root
	}
	return filepath.Join(home, strings.TrimPrefix(root, "~"))
}
