// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledExportersAreNoops(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
	}

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutExporters(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "stdout",
	}

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporterRejected(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "carrier-pigeon",
		MetricExporter: "none",
	}

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_NilContextRejected(t *testing.T) {
	_, err := Init(nil, DefaultConfig()) //nolint:staticcheck // nil context rejection under test
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "forgeline", cfg.ServiceName)
	assert.NotEmpty(t, cfg.Environment)
}
