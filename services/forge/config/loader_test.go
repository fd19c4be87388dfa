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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Risk.AutoApplyThreshold)
	assert.Equal(t, 70, cfg.Risk.CriticalThreshold)
	assert.Equal(t, 200, cfg.Planner.MaxSteps)
	assert.Equal(t, "forgeline", cfg.Signer.KeyID)
	assert.True(t, cfg.Apply.RequireSignature)
}

func TestLoad_PartialFileOverridesOnlyNamedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "risk:\n  autoApplyThreshold: 10\nplanner:\n  maxSteps: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Risk.AutoApplyThreshold)
	assert.Equal(t, 50, cfg.Planner.MaxSteps)
	// Unnamed fields keep their defaults.
	assert.Equal(t, 50, cfg.Risk.HighThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Apply.CommandTimeout)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MisorderedThresholdsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "risk:\n  mediumThreshold: 80\n  highThreshold: 50\n  criticalThreshold: 70\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds must be ordered")
}

func TestLoad_OutOfRangeThresholdRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "risk:\n  autoApplyThreshold: 250\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrCreate_WritesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".forgeline", FileName)

	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Risk.AutoApplyThreshold)

	// Second load reads the written file.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
