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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file's name inside the tool directory.
const FileName = "config.yaml"

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns the config location for a workspace.
func DefaultPath(workspaceDir string) string {
	return filepath.Join(workspaceDir, ".forgeline", FileName)
}

// Load reads and validates the config at path. A missing file yields the
// defaults; a malformed or invalid file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Start from defaults so a partial file only overrides what it names.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrCreate behaves like Load but writes the default config to path on
// first run.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

// Validate checks field constraints and threshold ordering.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	r := cfg.Risk
	if r.MediumThreshold > r.HighThreshold || r.HighThreshold > r.CriticalThreshold {
		return fmt.Errorf("risk thresholds must be ordered: medium (%d) <= high (%d) <= critical (%d)",
			r.MediumThreshold, r.HighThreshold, r.CriticalThreshold)
	}
	return nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
