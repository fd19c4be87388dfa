// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_StructuredFeature(t *testing.T) {
	g := NewGenerator(Analysis{Framework: "react"})

	steps, err := g.Generate(FeatureSpec{
		Name:       "User Accounts",
		Models:     []string{"User", "Session"},
		Routes:     []string{"/users", "/sessions"},
		Components: []string{"UserList"},
	})
	require.NoError(t, err)
	require.Len(t, steps, 5)

	layers := map[Layer]int{}
	for _, s := range steps {
		layers[s.Layer]++
		assert.Equal(t, ActionCreate, s.Action)
		assert.Equal(t, "user-accounts", s.FeatureID)
		assert.NotEmpty(t, s.ID)
		assert.NotEmpty(t, s.Target)
	}
	assert.Equal(t, 2, layers[LayerDatabase])
	assert.Equal(t, 2, layers[LayerBackend])
	assert.Equal(t, 1, layers[LayerFrontend])
}

func TestGenerate_UnstructuredFeatureFallsBackToGeneral(t *testing.T) {
	g := NewGenerator(Analysis{SourceRoot: "lib"})

	steps, err := g.Generate(FeatureSpec{
		Name:        "cleanup",
		Description: "tidy helpers",
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, LayerGeneral, steps[0].Layer)
	assert.Equal(t, "lib/cleanup.impl", steps[0].Target)
}

func TestGenerate_EmptyNameRejected(t *testing.T) {
	g := NewGenerator(Analysis{})
	_, err := g.Generate(FeatureSpec{})
	assert.Error(t, err)
}

func TestGenerate_FrameworkDrivesComponentExtension(t *testing.T) {
	tests := []struct {
		framework string
		want      string
	}{
		{"vue", "src/components/Card.vue"},
		{"svelte", "src/components/Card.svelte"},
		{"react", "src/components/Card.tsx"},
		{"", "src/components/Card.tsx"},
	}

	for _, tt := range tests {
		t.Run(tt.framework, func(t *testing.T) {
			g := NewGenerator(Analysis{Framework: tt.framework})
			steps, err := g.Generate(FeatureSpec{
				Name:       "cards",
				Components: []string{"Card"},
			})
			require.NoError(t, err)
			require.Len(t, steps, 1)
			assert.Equal(t, tt.want, steps[0].Target)
		})
	}
}

func TestResolve_ImplicitLayerDependencies(t *testing.T) {
	steps := []Step{
		{ID: "db1", FeatureID: "f", Layer: LayerDatabase},
		{ID: "db2", FeatureID: "f", Layer: LayerDatabase},
		{ID: "be", FeatureID: "f", Layer: LayerBackend},
		{ID: "fe", FeatureID: "f", Layer: LayerFrontend},
		{ID: "other", FeatureID: "g", Layer: LayerBackend},
	}

	NewResolver().Resolve(steps)

	assert.ElementsMatch(t, []string{"db1", "db2"}, steps[2].Dependencies)
	assert.ElementsMatch(t, []string{"db1", "db2", "be"}, steps[3].Dependencies)
	// No cross-feature inference.
	assert.Empty(t, steps[4].Dependencies)
}

func TestResolve_Idempotent(t *testing.T) {
	steps := []Step{
		{ID: "db", FeatureID: "f", Layer: LayerDatabase},
		{ID: "be", FeatureID: "f", Layer: LayerBackend},
	}

	r := NewResolver()
	r.Resolve(steps)
	r.Resolve(steps)

	assert.Equal(t, []string{"db"}, steps[1].Dependencies)
}

func TestBuild_PlanAssembly(t *testing.T) {
	b := NewBuilder(Analysis{})

	p, err := b.Build([]FeatureSpec{
		{Name: "orders", Models: []string{"Order"}, Routes: []string{"/orders"}},
	}, []Migration{
		{ID: "m1", Type: MigrationCreateTable, Forward: "CREATE TABLE orders (id TEXT)"},
	})
	require.NoError(t, err)

	assert.Equal(t, PlanVersion, p.Version)
	assert.NotEmpty(t, p.ID)
	require.Len(t, p.Steps, 2)
	// Database step scheduled before its backend dependent.
	assert.Equal(t, LayerDatabase, p.Steps[0].Layer)
	assert.Equal(t, LayerBackend, p.Steps[1].Layer)
	assert.Equal(t, []string{p.Steps[0].ID}, p.Steps[1].Dependencies)

	assert.Len(t, p.Migrations, 1)
	assert.Len(t, p.Tests, 2)
	assert.Equal(t, 2, p.Estimate.Files)
	assert.Equal(t, p.TotalTokens(), p.Estimate.Tokens)

	// Metadata counts mirror the collections.
	assert.Equal(t, Metadata{StepCount: 2, MigrationCount: 1, TestCount: 2}, p.Metadata)
	// Risk assessment happens after building.
	assert.Nil(t, p.RiskReport)
}

func TestPlan_WithRiskReport(t *testing.T) {
	b := NewBuilder(Analysis{})
	p, err := b.Build([]FeatureSpec{{Name: "orders", Models: []string{"Order"}}}, nil)
	require.NoError(t, err)

	report := &RiskReport{
		Score: 42,
		Level: RiskLevelMedium,
		Risks: []Risk{{Type: RiskTypeMigration, Severity: RiskSeverityMedium}},
	}
	assessed := p.WithRiskReport(report)

	require.NotNil(t, assessed.RiskReport)
	assert.Equal(t, 42, assessed.RiskReport.Score)
	assert.Equal(t, p.ID, assessed.ID)
	// The original plan is untouched.
	assert.Nil(t, p.RiskReport)
}

func TestBuild_MaxStepsEnforced(t *testing.T) {
	b := NewBuilder(Analysis{}, WithMaxSteps(1))

	_, err := b.Build([]FeatureSpec{
		{Name: "big", Models: []string{"A", "B"}},
	}, nil)
	assert.Error(t, err)
}

func TestMigrationType_Destructive(t *testing.T) {
	tests := []struct {
		typ  MigrationType
		want bool
	}{
		{MigrationCreateTable, false},
		{MigrationAlterTable, false},
		{MigrationChangeColumnType, false},
		{MigrationDropTable, true},
		{MigrationDropColumn, true},
		{MigrationTruncateTable, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Destructive())
		})
	}
}
