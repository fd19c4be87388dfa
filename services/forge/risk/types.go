// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk scores change plans and gates unattended application.
//
// The engine runs a fixed registry of independent, pure detectors over
// an ordered plan, aggregates their findings into a single weighted
// score, and decides whether the plan is safe to apply without human
// approval. The report records themselves live in the plan package so
// an assessed plan can carry its own report; this package holds the
// scoring policy.
package risk

import (
	"strings"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
)

// ScoringVersion is the version of the risk scoring algorithm.
// Increment when making changes that affect score calculations.
const ScoringVersion = "1.0"

// Exit codes for risk assessment commands.
const (
	ExitSuccess   = 0 // Risk at or below threshold
	ExitRiskFound = 1 // Risk above threshold
	ExitError     = 2 // Assessment failure
)

// Severity is the severity of a single risk finding.
type Severity = plan.RiskSeverity

const (
	SeverityLow      = plan.RiskSeverityLow
	SeverityMedium   = plan.RiskSeverityMedium
	SeverityHigh     = plan.RiskSeverityHigh
	SeverityCritical = plan.RiskSeverityCritical
)

// severityWeights drive score aggregation.
var severityWeights = map[Severity]float64{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// severityWeight returns the aggregation weight of the severity.
// Unknown severities weigh as low.
func severityWeight(s Severity) float64 {
	if w, ok := severityWeights[s]; ok {
		return w
	}
	return 1
}

// ParseSeverity parses a string to Severity, defaulting to high for
// unknown values so declared-but-unrecognized risks fail safe.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityHigh
	}
}

// Type is the category a risk finding belongs to.
type Type = plan.RiskType

const (
	TypeBreakingChange = plan.RiskTypeBreakingChange
	TypeDataLoss       = plan.RiskTypeDataLoss
	TypeSecurity       = plan.RiskTypeSecurity
	TypePerformance    = plan.RiskTypePerformance
	TypeDependency     = plan.RiskTypeDependency
	TypeMigration      = plan.RiskTypeMigration
)

// Risk is a single finding emitted by a detector.
type Risk = plan.Risk

// Level is the overall risk level of a plan.
type Level = plan.RiskLevel

const (
	LevelLow      = plan.RiskLevelLow
	LevelMedium   = plan.RiskLevelMedium
	LevelHigh     = plan.RiskLevelHigh
	LevelCritical = plan.RiskLevelCritical
)

// Report is the full risk assessment of one plan.
type Report = plan.RiskReport

// Thresholds configures level boundaries and the auto-apply gate.
type Thresholds struct {
	// AutoApply is the score below which automatic application may be
	// permitted (subject to the conjunctive gate).
	AutoApply int `json:"auto_apply"`

	// Medium, High, Critical are the inclusive lower bounds of the
	// corresponding levels.
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// DefaultThresholds returns the default level boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApply: 30,
		Medium:    30,
		High:      50,
		Critical:  70,
	}
}

// LevelFor maps a score to a level.
func (t Thresholds) LevelFor(score int) Level {
	switch {
	case score >= t.Critical:
		return LevelCritical
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// recommendations per overall level.
var recommendations = map[Level]string{
	LevelLow:      "Safe for standard review",
	LevelMedium:   "Review recommended before applying",
	LevelHigh:     "Thorough review required; do not auto-apply",
	LevelCritical: "Requires senior review and an explicit rollback plan",
}
