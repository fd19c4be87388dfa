// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
)

// stubDetector returns a fixed finding list, for aggregation tests.
type stubDetector struct {
	name  string
	risks []Risk
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Detect(_ context.Context, _ *Input) []Risk { return d.risks }

func TestAssess_EmptyPlanIsLowRisk(t *testing.T) {
	e := NewEngine()

	report, err := e.Assess(context.Background(), &plan.Plan{ID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Score)
	assert.Equal(t, LevelLow, report.Level)
	assert.True(t, report.SafeToAutoApply)
	assert.Empty(t, report.Risks)
}

func TestAssess_DropTableWithoutReverse(t *testing.T) {
	e := NewEngine()

	p := &plan.Plan{
		ID: "p2",
		Migrations: []plan.Migration{
			{ID: "m1", Type: plan.MigrationDropTable, Forward: "DROP TABLE users"},
		},
	}

	report, err := e.Assess(context.Background(), p)
	require.NoError(t, err)

	// Must contain at least the destructive (critical, 85) and the
	// rollback (high, 55) findings from the migration detector.
	var destructive, rollback *Risk
	for i := range report.Risks {
		r := &report.Risks[i]
		if r.Type == TypeMigration && r.Category == "destructive" {
			destructive = r
		}
		if r.Type == TypeMigration && r.Category == "rollback" {
			rollback = r
		}
	}
	require.NotNil(t, destructive)
	require.NotNil(t, rollback)
	assert.Equal(t, SeverityCritical, destructive.Severity)
	assert.Equal(t, 85.0, destructive.Score)
	assert.Equal(t, SeverityHigh, rollback.Severity)
	assert.Equal(t, 55.0, rollback.Score)

	assert.Greater(t, report.Score, 70)
	assert.Equal(t, LevelCritical, report.Level)
	assert.False(t, report.SafeToAutoApply)
}

func TestAssess_GateFalseOnHighSeverityRegardlessOfScore(t *testing.T) {
	// A single high finding with a tiny score keeps the aggregate
	// under every threshold, yet the gate must still be closed.
	e := NewEngine(WithDetectors(&stubDetector{
		name: "stub",
		risks: []Risk{
			{Type: TypePerformance, Severity: SeverityHigh, Score: 5},
		},
	}))

	report, err := e.Assess(context.Background(), &plan.Plan{ID: "p3"})
	require.NoError(t, err)

	assert.Less(t, report.Score, DefaultThresholds().AutoApply)
	assert.False(t, report.SafeToAutoApply)
}

func TestAssess_GateFalseOnDataLossAndBreakingChange(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
	}{
		{"data_loss", TypeDataLoss},
		{"breaking_change", TypeBreakingChange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(WithDetectors(&stubDetector{
				name: "stub",
				risks: []Risk{
					{Type: tt.typ, Severity: SeverityLow, Score: 5},
				},
			}))

			report, err := e.Assess(context.Background(), &plan.Plan{ID: "p"})
			require.NoError(t, err)
			assert.False(t, report.SafeToAutoApply)
		})
	}
}

func TestAggregateScore_MonotonicInSeverity(t *testing.T) {
	base := []Risk{
		{Severity: SeverityMedium, Score: 40},
		{Severity: SeverityLow, Score: 20},
	}
	raised := []Risk{
		{Severity: SeverityCritical, Score: 40},
		{Severity: SeverityLow, Score: 20},
	}

	// Same finding count, one severity raised: score must not decrease.
	assert.GreaterOrEqual(t, aggregateScore(raised), aggregateScore(base))
}

func TestAggregateScore_ClampedTo100(t *testing.T) {
	risks := make([]Risk, 12)
	for i := range risks {
		risks[i] = Risk{Severity: SeverityCritical, Score: 100}
	}
	assert.Equal(t, 100, aggregateScore(risks))
}

func TestAggregateScore_CountMultiplierCapped(t *testing.T) {
	one := aggregateScore([]Risk{{Severity: SeverityLow, Score: 40}})
	// 40 * 1.05 = 42
	assert.Equal(t, 42, one)

	many := make([]Risk, 20)
	for i := range many {
		many[i] = Risk{Severity: SeverityLow, Score: 40}
	}
	// Multiplier capped at 1.5: 40 * 1.5 = 60, not 40 * 2.0.
	assert.Equal(t, 60, aggregateScore(many))
}

func TestAssess_NilInputsRejected(t *testing.T) {
	e := NewEngine()

	_, err := e.Assess(nil, &plan.Plan{}) //nolint:staticcheck // nil ctx contract
	assert.Error(t, err)

	_, err = e.Assess(context.Background(), nil)
	assert.Error(t, err)
}

func TestEngine_RegistryIsInspectable(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, []string{
		"breaking_change", "data_loss", "security",
		"performance", "dependency", "migration",
	}, e.Detectors())
}

func TestAssess_WarningsSummarizeFindings(t *testing.T) {
	e := NewEngine()

	p := &plan.Plan{
		ID: "p4",
		Steps: []plan.Step{
			{ID: "s1", Action: plan.ActionDelete, Target: "old/module.ts", Layer: plan.LayerGeneral},
		},
	}

	report, err := e.Assess(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Warnings)
}
