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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/risk"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	riskPlanFile string
	riskOutFile  string
	riskJSON     bool
	riskQuiet    bool
	riskExplain  bool
	riskTimeout  int
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Score a plan and gate automatic application",
	Long: `Assess a plan for risky operations and produce a scored report.

Detectors inspect migrations (destructive operations, data-loss hints),
security-sensitive paths, deletion steps, and plan size. The weighted
score maps to a level using the configured thresholds, and the
auto-apply gate passes only when every gate condition holds.

Examples:
  forgeline risk --plan plan.json            # Text report
  forgeline risk --plan plan.json --json     # JSON for automation
  forgeline risk --plan plan.json --quiet    # Exit code only
  forgeline risk --plan plan.json --explain  # Per-finding breakdown
  forgeline risk --plan plan.json -o assessed.json  # Write assessed plan

Exit Codes:
  0 = Safe to auto-apply
  1 = Risk requires review
  2 = Error (unreadable plan, assessment failure)`,
	Run: runRiskCommand,
}

func init() {
	riskCmd.Flags().StringVar(&riskPlanFile, "plan", "",
		"Plan file to assess (JSON)")
	riskCmd.Flags().StringVarP(&riskOutFile, "output", "o", "",
		"Write the plan with its risk report attached to this file")
	riskCmd.Flags().BoolVar(&riskJSON, "json", false,
		"Output as JSON")
	riskCmd.Flags().BoolVar(&riskQuiet, "quiet", false,
		"Only exit code, no output")
	riskCmd.Flags().BoolVar(&riskExplain, "explain", false,
		"Show per-finding breakdown")
	riskCmd.Flags().IntVar(&riskTimeout, "timeout", 60,
		"Total timeout in seconds")
	riskCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(riskCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRiskCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(riskTimeout)*time.Second)
	defer cancel()

	data, err := os.ReadFile(riskPlanFile)
	if err != nil {
		outputRiskError("Failed to read plan", err)
		os.Exit(risk.ExitError)
	}

	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		outputRiskError("Failed to parse plan", err)
		os.Exit(risk.ExitError)
	}

	engine := risk.NewEngine(risk.WithThresholds(risk.Thresholds{
		AutoApply: cfg.Risk.AutoApplyThreshold,
		Medium:    cfg.Risk.MediumThreshold,
		High:      cfg.Risk.HighThreshold,
		Critical:  cfg.Risk.CriticalThreshold,
	}))

	report, err := engine.Assess(ctx, &p)
	if err != nil {
		outputRiskError("Risk assessment failed", err)
		os.Exit(risk.ExitError)
	}

	if riskOutFile != "" {
		assessed, err := json.MarshalIndent(p.WithRiskReport(report), "", "  ")
		if err != nil {
			outputRiskError("Failed to encode assessed plan", err)
			os.Exit(risk.ExitError)
		}
		if err := os.WriteFile(riskOutFile, append(assessed, '\n'), 0o644); err != nil {
			outputRiskError("Failed to write assessed plan", err)
			os.Exit(risk.ExitError)
		}
	}

	if !riskQuiet {
		if riskJSON {
			if err := outputJSON(report); err != nil {
				os.Exit(risk.ExitError)
			}
		} else {
			outputRiskText(report)
		}
	}

	if report.SafeToAutoApply {
		os.Exit(risk.ExitSuccess)
	}
	os.Exit(risk.ExitRiskFound)
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputRiskError(msg string, err error) {
	if riskJSON {
		result := map[string]any{
			"success": false,
			"error":   fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

func outputRiskText(report *risk.Report) {
	ux.Title(fmt.Sprintf("Risk Level: %s %s", report.Level, riskIndicator(report.Level)))
	ux.Info(fmt.Sprintf("Score: %d/100 (algorithm v%s)", report.Score, report.ScoringVersion))
	fmt.Println()

	if len(report.Warnings) > 0 {
		for _, w := range report.Warnings {
			ux.Warning(w)
		}
		fmt.Println()
	}

	if riskExplain && len(report.Risks) > 0 {
		ux.Muted("Findings:")
		for _, r := range report.Risks {
			fmt.Printf("  [%s] %s/%s: %s\n", r.Severity, r.Type, r.Category, r.Description)
			if r.Impact != "" {
				fmt.Printf("      impact: %s\n", r.Impact)
			}
			if r.Mitigation != "" {
				fmt.Printf("      mitigation: %s\n", r.Mitigation)
			}
		}
		fmt.Println()
	}

	fmt.Printf("Recommendation: %s\n", report.Recommendation)
	if report.SafeToAutoApply {
		ux.Success("Safe to auto-apply")
	} else {
		ux.Warning("Manual review required")
	}
}

func riskIndicator(level risk.Level) string {
	switch level {
	case risk.LevelCritical:
		return "[!!!]"
	case risk.LevelHigh:
		return "[!!]"
	case risk.LevelMedium:
		return "[!]"
	default:
		return "[ok]"
	}
}
