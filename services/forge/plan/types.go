// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan builds ordered, schedulable change plans from feature
// specifications.
//
// A Plan is the unit of work handed to the risk engine and the bundle
// compiler: an ordered list of atomic Steps plus any database Migrations
// the change requires. Plans are immutable once built; a new Plan is
// constructed for every change request.
package plan

import "time"

// Action is the kind of change a Step performs on its target.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Layer is the architectural tier a Step belongs to. Layer drives
// scheduling priority: database work runs before backend work, backend
// before frontend, and tests last.
type Layer string

const (
	LayerDatabase Layer = "database"
	LayerBackend  Layer = "backend"
	LayerFrontend Layer = "frontend"
	LayerGeneral  Layer = "general"
	LayerTest     Layer = "test"
)

// layerPriority orders layers for scheduling. Lower runs earlier.
var layerPriority = map[Layer]int{
	LayerDatabase: 0,
	LayerBackend:  1,
	LayerFrontend: 2,
	LayerGeneral:  3,
	LayerTest:     4,
}

// Priority returns the scheduling priority of the layer. Unknown layers
// sort after all known ones.
func (l Layer) Priority() int {
	if p, ok := layerPriority[l]; ok {
		return p
	}
	return len(layerPriority)
}

// Step is one atomic create/modify/delete action targeting a single
// file-like location.
//
// Steps are created by the Generator, gain dependencies from the
// Resolver, and are reordered (identity untouched) by the Scheduler.
// Once scheduled a Step must be treated as immutable.
type Step struct {
	// ID uniquely identifies the step within a plan.
	ID string `json:"id"`

	// FeatureID groups steps belonging to the same feature.
	FeatureID string `json:"feature_id"`

	// Action is the change kind.
	Action Action `json:"action"`

	// Target is the path-like location the step touches.
	Target string `json:"target"`

	// Layer is the architectural tier of the target.
	Layer Layer `json:"layer"`

	// Dependencies are IDs of steps that must be applied first.
	// Maintained as a deduplicated ordered set.
	Dependencies []string `json:"dependencies,omitempty"`

	// EstimatedTokens is the projected generation cost of the step.
	EstimatedTokens int `json:"estimated_tokens,omitempty"`

	// RiskHint carries a free-form hint for risk detectors.
	RiskHint string `json:"risk_hint,omitempty"`

	// Description explains what the step does.
	Description string `json:"description,omitempty"`
}

// AddDependency appends a dependency ID if not already present.
func (s *Step) AddDependency(id string) {
	for _, d := range s.Dependencies {
		if d == id {
			return
		}
	}
	s.Dependencies = append(s.Dependencies, id)
}

// MigrationType classifies a schema change.
type MigrationType string

const (
	MigrationCreateTable      MigrationType = "create_table"
	MigrationAlterTable       MigrationType = "alter_table"
	MigrationDropTable        MigrationType = "drop_table"
	MigrationDropColumn       MigrationType = "drop_column"
	MigrationChangeColumnType MigrationType = "change_column_type"
	MigrationTruncateTable    MigrationType = "truncate_table"
)

// Destructive reports whether applying the migration can discard data.
func (t MigrationType) Destructive() bool {
	switch t {
	case MigrationDropTable, MigrationDropColumn, MigrationTruncateTable:
		return true
	}
	return false
}

// Migration is a forward (and optionally reverse) database change
// associated with a plan. Consumed read-only by the risk engine, the
// bundle compiler, and the applier.
type Migration struct {
	// ID uniquely identifies the migration.
	ID string `json:"id"`

	// Type classifies the schema change.
	Type MigrationType `json:"type"`

	// Forward is the statement that applies the migration.
	Forward string `json:"forward"`

	// Reverse is the statement that undoes the migration. May be empty
	// when the change is not reversible.
	Reverse string `json:"reverse,omitempty"`

	// DataLossRisk is the declared risk of applying this migration
	// (low, medium, high, critical).
	DataLossRisk string `json:"data_loss_risk,omitempty"`
}

// TestSpec describes a generated test derived from a step.
type TestSpec struct {
	// Path is where the test file will live.
	Path string `json:"path"`

	// SourceTarget is the step target the test covers.
	SourceTarget string `json:"source_target"`
}

// Estimate captures the projected cost of executing a plan.
type Estimate struct {
	Tokens   int           `json:"tokens"`
	Files    int           `json:"files"`
	Duration time.Duration `json:"duration"`
}

// FeatureSpec is the structured input to plan construction: the
// declared models, routes, and components of a feature, or a free-form
// description when no structure is available.
type FeatureSpec struct {
	Name        string   `json:"name"`
	Models      []string `json:"models,omitempty"`
	Routes      []string `json:"routes,omitempty"`
	Components  []string `json:"components,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Analysis carries workspace analysis context consumed during step
// generation: the detected frontend framework, the API convention in
// use, and fallback locations.
type Analysis struct {
	// Framework is the detected frontend framework (react, vue, ...).
	Framework string `json:"framework,omitempty"`

	// APIConvention is the detected backend route convention
	// (for example "rest" or "rpc").
	APIConvention string `json:"api_convention,omitempty"`

	// SourceRoot is the default location for general steps when no
	// structured sub-parts exist.
	SourceRoot string `json:"source_root,omitempty"`

	// BaselineContent maps workspace paths to the content the plan was
	// built against. The applier uses it for conflict detection.
	BaselineContent map[string]string `json:"-"`
}

// Plan is the full ordered, risk-assessed set of steps and migrations
// for one change request. Immutable once built.
type Plan struct {
	// Version is the plan schema version.
	Version string `json:"version"`

	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// Steps is the scheduled step list, dependency-consistent order.
	Steps []Step `json:"steps"`

	// Migrations lists database changes the plan requires.
	Migrations []Migration `json:"migrations,omitempty"`

	// Tests lists derived test specs.
	Tests []TestSpec `json:"tests,omitempty"`

	// Estimate is the projected resource cost.
	Estimate Estimate `json:"estimate"`

	// RiskReport is the assessment attached after scoring; nil until
	// the plan has been assessed.
	RiskReport *RiskReport `json:"risk_report,omitempty"`

	// Metadata aggregates counts over the plan's collections.
	Metadata Metadata `json:"metadata"`

	// CreatedAt records plan construction time.
	CreatedAt time.Time `json:"created_at"`
}

// Metadata counts the plan's collections.
type Metadata struct {
	StepCount      int `json:"step_count"`
	MigrationCount int `json:"migration_count"`
	TestCount      int `json:"test_count"`
}

// WithRiskReport returns a copy of the plan carrying the report. The
// receiver is not modified; plans are immutable once built.
func (p *Plan) WithRiskReport(r *RiskReport) *Plan {
	assessed := *p
	assessed.RiskReport = r
	return &assessed
}

// StepByID returns the step with the given ID, or nil.
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepIDs returns the IDs of all steps in plan order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// CountByLayer returns the number of steps in the given layer.
func (p *Plan) CountByLayer(layer Layer) int {
	n := 0
	for _, s := range p.Steps {
		if s.Layer == layer {
			n++
		}
	}
	return n
}

// TotalTokens returns the summed token estimate across all steps.
func (p *Plan) TotalTokens() int {
	total := 0
	for _, s := range p.Steps {
		total += s.EstimatedTokens
	}
	return total
}
