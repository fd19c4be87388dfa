// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the tool's YAML configuration.
package config

import (
	"time"
)

// Config is the full configuration surface.
type Config struct {
	// Risk tunes the risk engine thresholds.
	Risk RiskConfig `yaml:"risk"`

	// Planner tunes plan building.
	Planner PlannerConfig `yaml:"planner"`

	// Signer configures bundle signing keys.
	Signer SignerConfig `yaml:"signer"`

	// Apply configures the transactional applier.
	Apply ApplyConfig `yaml:"apply"`

	// Store configures the bundle archive.
	Store StoreConfig `yaml:"store"`

	// Telemetry toggles metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RiskConfig holds the risk engine's score thresholds (0-100).
type RiskConfig struct {
	AutoApplyThreshold int `yaml:"autoApplyThreshold" validate:"gte=0,lte=100"`
	MediumThreshold    int `yaml:"mediumThreshold" validate:"gte=0,lte=100"`
	HighThreshold      int `yaml:"highThreshold" validate:"gte=0,lte=100"`
	CriticalThreshold  int `yaml:"criticalThreshold" validate:"gte=0,lte=100"`
}

// PlannerConfig holds plan construction limits.
type PlannerConfig struct {
	MaxSteps int `yaml:"maxSteps" validate:"gt=0"`
}

// SignerConfig names the signing key and where key material lives.
type SignerConfig struct {
	KeyID string `yaml:"keyId" validate:"required"`

	// KeyDir is the directory holding the PEM key pair. Empty means
	// <workspace>/.forgeline/keys.
	KeyDir string `yaml:"keyDir"`
}

// ApplyConfig tunes the transactional applier.
type ApplyConfig struct {
	// CommandTimeout bounds each lifecycle command.
	CommandTimeout time.Duration `yaml:"commandTimeout" validate:"gt=0"`

	// MaxOutputBytes caps captured command output.
	MaxOutputBytes int `yaml:"maxOutputBytes" validate:"gt=0"`

	// RequireSignature rejects unsigned bundles at apply time.
	RequireSignature bool `yaml:"requireSignature"`
}

// StoreConfig locates the bundle archive.
type StoreConfig struct {
	// Path is the database directory. Empty means
	// <workspace>/.forgeline/bundles.
	Path string `yaml:"path"`
}

// TelemetryConfig toggles observability.
type TelemetryConfig struct {
	MetricsEnabled bool `yaml:"metricsEnabled"`
	TracingEnabled bool `yaml:"tracingEnabled"`

	// PrometheusAddr is the listen address for the metrics endpoint,
	// used only when metrics are enabled.
	PrometheusAddr string `yaml:"prometheusAddr"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Risk: RiskConfig{
			AutoApplyThreshold: 30,
			MediumThreshold:    30,
			HighThreshold:      50,
			CriticalThreshold:  70,
		},
		Planner: PlannerConfig{
			MaxSteps: 200,
		},
		Signer: SignerConfig{
			KeyID: "forgeline",
		},
		Apply: ApplyConfig{
			CommandTimeout:   5 * time.Minute,
			MaxOutputBytes:   1 * 1024 * 1024,
			RequireSignature: true,
		},
		Telemetry: TelemetryConfig{
			PrometheusAddr: ":9464",
		},
	}
}
