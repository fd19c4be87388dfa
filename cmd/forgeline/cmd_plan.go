// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	planInput    string
	planOutput   string
	planMaxSteps int
	planJSON     bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Schedule feature specs into an ordered step plan",
	Long: `Build an executable plan from a feature request file.

The request file is JSON with an analysis section and a feature list:

  {
    "analysis": {"framework": "react", "api_convention": "rest"},
    "features": [{"name": "billing", "models": ["invoice"]}],
    "migrations": [{"id": "001_invoices", "type": "create_table"}]
  }

Steps are emitted in dependency-consistent order so a bundle compiled
from the plan can be applied front to back.

Examples:
  forgeline plan --input request.json              # Text summary
  forgeline plan --input request.json --json       # Full plan as JSON
  forgeline plan --input request.json -o plan.json # Write plan to file`,
	RunE: runPlanCommand,
}

func init() {
	planCmd.Flags().StringVarP(&planInput, "input", "i", "",
		"Feature request file (JSON)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "",
		"Write the plan JSON to this file")
	planCmd.Flags().IntVar(&planMaxSteps, "max-steps", 0,
		"Override the configured step limit")
	planCmd.Flags().BoolVar(&planJSON, "json", false,
		"Output the full plan as JSON")
	planCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(planCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// planRequest is the on-disk request format.
type planRequest struct {
	Analysis   plan.Analysis      `json:"analysis"`
	Features   []plan.FeatureSpec `json:"features"`
	Migrations []plan.Migration   `json:"migrations,omitempty"`
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(planInput)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	var req planRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}

	maxSteps := cfg.Planner.MaxSteps
	if planMaxSteps > 0 {
		maxSteps = planMaxSteps
	}

	builder := plan.NewBuilder(req.Analysis, plan.WithMaxSteps(maxSteps))
	p, err := builder.Build(req.Features, req.Migrations)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	if planOutput != "" {
		encoded, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		if err := os.WriteFile(planOutput, append(encoded, '\n'), 0o644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		ux.Success(fmt.Sprintf("Plan %s written to %s", p.ID, planOutput))
		return nil
	}

	if planJSON {
		return outputJSON(p)
	}
	outputPlanText(p)
	return nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputPlanText(p *plan.Plan) {
	ux.Title(fmt.Sprintf("Plan %s (schema v%s)", p.ID, p.Version))
	ux.Info(fmt.Sprintf("%d steps, %d migrations, %d tests",
		len(p.Steps), len(p.Migrations), len(p.Tests)))
	ux.Info(fmt.Sprintf("Estimate: %d tokens, %d files, ~%s",
		p.Estimate.Tokens, p.Estimate.Files, p.Estimate.Duration))
	fmt.Println()

	for i, s := range p.Steps {
		deps := ""
		if len(s.Dependencies) > 0 {
			deps = fmt.Sprintf(" (after %d)", len(s.Dependencies))
		}
		fmt.Printf("  %3d. [%s/%s] %s%s\n", i+1, s.Action, s.Layer, s.Target, deps)
	}

	if len(p.Migrations) > 0 {
		fmt.Println()
		ux.Muted("Migrations:")
		for _, m := range p.Migrations {
			fmt.Printf("  - %s (%s)\n", m.ID, m.Type)
		}
	}
}
