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
	"fmt"
	"strings"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
)

// TokenBudget is the token-cost threshold above which the performance
// detector flags the plan.
const TokenBudget = 80000

// Input is the read-only view of a plan handed to detectors.
type Input struct {
	Steps      []plan.Step
	Migrations []plan.Migration
}

// TotalTokens sums the step token estimates.
func (in *Input) TotalTokens() int {
	total := 0
	for _, s := range in.Steps {
		total += s.EstimatedTokens
	}
	return total
}

// Detector is a single pure risk detector. Detectors must not mutate
// the input and must be safe for concurrent use.
type Detector interface {
	// Name returns the detector name used in the registry.
	Name() string

	// Detect returns zero or more findings for the input.
	Detect(ctx context.Context, in *Input) []Risk
}

// DefaultDetectors returns the standard detector registry in its
// canonical order.
func DefaultDetectors() []Detector {
	return []Detector{
		&BreakingChangeDetector{},
		&DataLossDetector{},
		&SecurityDetector{},
		&PerformanceDetector{},
		&DependencyDetector{},
		&MigrationDetector{},
	}
}

// =============================================================================
// BREAKING CHANGE
// =============================================================================

// BreakingChangeDetector flags API-surface modifications, schema-
// altering migrations, and bulk UI rewrites.
type BreakingChangeDetector struct{}

// Name implements Detector.
func (d *BreakingChangeDetector) Name() string { return "breaking_change" }

// Detect implements Detector.
func (d *BreakingChangeDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	var apiMods []string
	var uiMods []string
	for _, s := range in.Steps {
		if s.Action != plan.ActionModify {
			continue
		}
		switch s.Layer {
		case plan.LayerBackend:
			apiMods = append(apiMods, s.ID)
		case plan.LayerFrontend:
			uiMods = append(uiMods, s.ID)
		}
	}

	if len(apiMods) > 0 {
		risks = append(risks, Risk{
			Type:          TypeBreakingChange,
			Category:      "api",
			Severity:      SeverityHigh,
			Score:         50,
			AffectedSteps: apiMods,
			Description:   fmt.Sprintf("%d backend route(s) modified", len(apiMods)),
			Impact:        "Existing API consumers may break",
			Mitigation:    "Version the API or keep backward-compatible handlers",
		})
	}

	var altering []string
	for _, m := range in.Migrations {
		if m.Type.Destructive() || m.Type == plan.MigrationChangeColumnType {
			altering = append(altering, m.ID)
		}
	}
	if len(altering) > 0 {
		risks = append(risks, Risk{
			Type:               TypeBreakingChange,
			Category:           "schema",
			Severity:           SeverityCritical,
			Score:              80,
			AffectedMigrations: altering,
			Description:        fmt.Sprintf("%d destructive schema-altering migration(s)", len(altering)),
			Impact:             "Code reading the old schema will fail",
			Mitigation:         "Stage schema changes behind compatible reads",
		})
	}

	if len(uiMods) > 3 {
		risks = append(risks, Risk{
			Type:          TypeBreakingChange,
			Category:      "ui",
			Severity:      SeverityMedium,
			Score:         40,
			AffectedSteps: uiMods,
			Description:   fmt.Sprintf("%d UI components modified in one plan", len(uiMods)),
			Impact:        "Broad visual or behavioral regressions",
			Mitigation:    "Split the UI changes across smaller plans",
		})
	}

	return risks
}

// =============================================================================
// DATA LOSS
// =============================================================================

// DataLossDetector flags deletions and data-destroying migrations.
type DataLossDetector struct{}

// Name implements Detector.
func (d *DataLossDetector) Name() string { return "data_loss" }

// Detect implements Detector.
func (d *DataLossDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	var deletes []string
	for _, s := range in.Steps {
		if s.Action == plan.ActionDelete {
			deletes = append(deletes, s.ID)
		}
	}
	if len(deletes) > 0 {
		severity, score := SeverityHigh, 50.0
		if len(deletes) > 5 {
			severity, score = SeverityCritical, 70.0
		}
		risks = append(risks, Risk{
			Type:          TypeDataLoss,
			Category:      "file_deletion",
			Severity:      severity,
			Score:         score,
			AffectedSteps: deletes,
			Description:   fmt.Sprintf("%d file(s) will be deleted", len(deletes)),
			Impact:        "Deleted content is unrecoverable without the snapshot",
			Mitigation:    "Verify each deletion target is no longer referenced",
		})
	}

	for _, m := range in.Migrations {
		switch m.Type {
		case plan.MigrationDropTable:
			risks = append(risks, Risk{
				Type:               TypeDataLoss,
				Category:           "drop_table",
				Severity:           SeverityCritical,
				Score:              90,
				AffectedMigrations: []string{m.ID},
				Description:        fmt.Sprintf("Migration %s drops a table", m.ID),
				Impact:             "All rows in the table are lost",
				Mitigation:         "Archive the table before dropping it",
			})
		case plan.MigrationDropColumn:
			risks = append(risks, Risk{
				Type:               TypeDataLoss,
				Category:           "drop_column",
				Severity:           SeverityHigh,
				Score:              70,
				AffectedMigrations: []string{m.ID},
				Description:        fmt.Sprintf("Migration %s drops a column", m.ID),
				Impact:             "Column data is lost",
				Mitigation:         "Copy the column to an archive table first",
			})
		}
	}

	return risks
}

// =============================================================================
// SECURITY
// =============================================================================

// SecurityDetector flags changes touching authentication, authorization,
// and credential material.
type SecurityDetector struct{}

// Name implements Detector.
func (d *SecurityDetector) Name() string { return "security" }

var (
	authTerms       = []string{"auth", "session", "login"}
	permissionTerms = []string{"permission", "role", "authorization"}
	credentialTerms = []string{"password", "secret", "key", "token"}
)

// Detect implements Detector.
func (d *SecurityDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	for _, s := range in.Steps {
		haystack := strings.ToLower(s.Target + " " + s.Description)

		if containsAny(haystack, authTerms) && s.Action == plan.ActionModify {
			risks = append(risks, Risk{
				Type:          TypeSecurity,
				Category:      "authentication",
				Severity:      SeverityHigh,
				Score:         60,
				AffectedSteps: []string{s.ID},
				Description:   fmt.Sprintf("Authentication code modified: %s", s.Target),
				Impact:        "Login or session handling may regress",
				Mitigation:    "Run the full authentication test suite",
			})
			continue
		}

		if containsAny(haystack, permissionTerms) {
			risks = append(risks, Risk{
				Type:          TypeSecurity,
				Category:      "authorization",
				Severity:      SeverityHigh,
				Score:         60,
				AffectedSteps: []string{s.ID},
				Description:   fmt.Sprintf("Authorization surface touched: %s", s.Target),
				Impact:        "Privilege boundaries may shift",
				Mitigation:    "Review role and permission assignments",
			})
			continue
		}

		if containsAny(haystack, credentialTerms) {
			risks = append(risks, Risk{
				Type:          TypeSecurity,
				Category:      "credentials",
				Severity:      SeverityMedium,
				Score:         45,
				AffectedSteps: []string{s.ID},
				Description:   fmt.Sprintf("Credential-adjacent target: %s", s.Target),
				Impact:        "Secrets handling may be affected",
				Mitigation:    "Confirm no secret material is written to the workspace",
			})
		}
	}

	return risks
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// =============================================================================
// PERFORMANCE
// =============================================================================

// PerformanceDetector flags oversized plans.
type PerformanceDetector struct{}

// Name implements Detector.
func (d *PerformanceDetector) Name() string { return "performance" }

// Detect implements Detector.
func (d *PerformanceDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	dbSteps := 0
	for _, s := range in.Steps {
		if s.Layer == plan.LayerDatabase {
			dbSteps++
		}
	}
	if dbSteps > 10 {
		risks = append(risks, Risk{
			Type:        TypePerformance,
			Category:    "database_churn",
			Severity:    SeverityMedium,
			Score:       35,
			Description: fmt.Sprintf("%d database-layer steps in one plan", dbSteps),
			Impact:      "Long migration windows and lock contention",
			Mitigation:  "Batch database work across plans",
		})
	}

	if len(in.Steps) > 50 {
		risks = append(risks, Risk{
			Type:        TypePerformance,
			Category:    "plan_size",
			Severity:    SeverityMedium,
			Score:       40,
			Description: fmt.Sprintf("Plan has %d steps", len(in.Steps)),
			Impact:      "Large plans are hard to review and slow to apply",
			Mitigation:  "Split the change into smaller plans",
		})
	}

	if tokens := in.TotalTokens(); tokens > TokenBudget {
		risks = append(risks, Risk{
			Type:        TypePerformance,
			Category:    "token_budget",
			Severity:    SeverityLow,
			Score:       20,
			Description: fmt.Sprintf("Estimated token cost %d exceeds budget %d", tokens, TokenBudget),
			Impact:      "Generation may be truncated or expensive",
			Mitigation:  "Reduce scope or raise the budget deliberately",
		})
	}

	return risks
}

// =============================================================================
// DEPENDENCY
// =============================================================================

// DependencyDetector flags circular chains, dangling references, and
// over-coupled steps.
type DependencyDetector struct{}

// Name implements Detector.
func (d *DependencyDetector) Name() string { return "dependency" }

// Detect implements Detector.
func (d *DependencyDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	known := make(map[string][]string, len(in.Steps))
	for _, s := range in.Steps {
		known[s.ID] = s.Dependencies
	}

	for _, chain := range findCycles(known) {
		risks = append(risks, Risk{
			Type:          TypeDependency,
			Category:      "cycle",
			Severity:      SeverityHigh,
			Score:         65,
			AffectedSteps: chain,
			Description:   fmt.Sprintf("Circular dependency chain: %s", strings.Join(chain, " -> ")),
			Impact:        "Ordering between these steps is undefined",
			Mitigation:    "Remove one edge of the cycle",
		})
	}

	for _, s := range in.Steps {
		var missing []string
		for _, dep := range s.Dependencies {
			if _, ok := known[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			risks = append(risks, Risk{
				Type:          TypeDependency,
				Category:      "missing_reference",
				Severity:      SeverityMedium,
				Score:         40,
				AffectedSteps: []string{s.ID},
				Description: fmt.Sprintf("Step %s references unknown dependencies: %s",
					s.ID, strings.Join(missing, ", ")),
				Impact:     "The dependency cannot be ordered before this step",
				Mitigation: "Remove or correct the dangling references",
			})
		}

		if len(s.Dependencies) > 5 {
			risks = append(risks, Risk{
				Type:          TypeDependency,
				Category:      "high_coupling",
				Severity:      SeverityLow,
				Score:         25,
				AffectedSteps: []string{s.ID},
				Description:   fmt.Sprintf("Step %s has %d dependencies", s.ID, len(s.Dependencies)),
				Impact:        "Tightly coupled steps are fragile to reorder",
				Mitigation:    "Decompose the step",
			})
		}
	}

	return risks
}

// findCycles locates dependency cycles with a path-tracking DFS. When a
// node reappears on the current path, the path segment from its first
// occurrence through the current node is recorded as a cycle chain.
func findCycles(deps map[string][]string) [][]string {
	var cycles [][]string
	visited := make(map[string]bool)

	var walk func(id string, path []string)
	walk = func(id string, path []string) {
		for i, onPath := range path {
			if onPath == id {
				chain := make([]string, len(path)-i)
				copy(chain, path[i:])
				cycles = append(cycles, chain)
				return
			}
		}
		if visited[id] {
			return
		}
		visited[id] = true

		path = append(path, id)
		for _, dep := range deps[id] {
			if _, ok := deps[dep]; ok {
				walk(dep, path)
			}
		}
	}

	for id := range deps {
		walk(id, nil)
	}
	return cycles
}

// =============================================================================
// MIGRATION
// =============================================================================

// MigrationDetector flags oversized migration sets, irreversible
// migrations, and destructive migration types.
type MigrationDetector struct{}

// Name implements Detector.
func (d *MigrationDetector) Name() string { return "migration" }

// Detect implements Detector.
func (d *MigrationDetector) Detect(ctx context.Context, in *Input) []Risk {
	var risks []Risk

	if len(in.Migrations) > 5 {
		ids := make([]string, len(in.Migrations))
		for i, m := range in.Migrations {
			ids[i] = m.ID
		}
		risks = append(risks, Risk{
			Type:               TypeMigration,
			Category:           "volume",
			Severity:           SeverityMedium,
			Score:              45,
			AffectedMigrations: ids,
			Description:        fmt.Sprintf("%d migrations in one plan", len(in.Migrations)),
			Impact:             "Large migration batches are hard to roll back partially",
			Mitigation:         "Split migrations across releases",
		})
	}

	for _, m := range in.Migrations {
		if strings.TrimSpace(m.Reverse) == "" {
			risks = append(risks, Risk{
				Type:               TypeMigration,
				Category:           "rollback",
				Severity:           SeverityHigh,
				Score:              55,
				AffectedMigrations: []string{m.ID},
				Description:        fmt.Sprintf("Migration %s has no reverse statement", m.ID),
				Impact:             "The migration cannot be undone automatically",
				Mitigation:         "Write a reverse statement or document manual recovery",
			})
		}

		if m.Type == plan.MigrationDropTable || m.Type == plan.MigrationDropColumn ||
			m.Type == plan.MigrationTruncateTable {
			risks = append(risks, Risk{
				Type:               TypeMigration,
				Category:           "destructive",
				Severity:           SeverityCritical,
				Score:              85,
				AffectedMigrations: []string{m.ID},
				Description:        fmt.Sprintf("Migration %s is destructive (%s)", m.ID, m.Type),
				Impact:             "Applying it discards data permanently",
				Mitigation:         "Take a database backup before applying",
			})
		}
	}

	return risks
}
