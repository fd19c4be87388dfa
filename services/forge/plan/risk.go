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

// Risk assessment records live alongside the Plan record they describe
// so a plan can carry its own report across the pipeline boundary. The
// risk package produces them; everything here is a passive record.

// RiskSeverity is the severity of a single risk finding.
type RiskSeverity string

const (
	RiskSeverityLow      RiskSeverity = "low"
	RiskSeverityMedium   RiskSeverity = "medium"
	RiskSeverityHigh     RiskSeverity = "high"
	RiskSeverityCritical RiskSeverity = "critical"
)

// Order returns the numeric order of the severity for comparisons.
func (s RiskSeverity) Order() int {
	switch s {
	case RiskSeverityCritical:
		return 3
	case RiskSeverityHigh:
		return 2
	case RiskSeverityMedium:
		return 1
	default:
		return 0
	}
}

// RiskType is the category a risk finding belongs to.
type RiskType string

const (
	RiskTypeBreakingChange RiskType = "breaking_change"
	RiskTypeDataLoss       RiskType = "data_loss"
	RiskTypeSecurity       RiskType = "security"
	RiskTypePerformance    RiskType = "performance"
	RiskTypeDependency     RiskType = "dependency"
	RiskTypeMigration      RiskType = "migration"
)

// Risk is a single finding emitted by a detector.
type Risk struct {
	// Type is the finding category.
	Type RiskType `json:"type"`

	// Category refines the type (for example "destructive" within
	// migration risks).
	Category string `json:"category"`

	// Severity is the fixed severity assigned by the detector.
	Severity RiskSeverity `json:"severity"`

	// Score is the numeric contribution before severity weighting.
	Score float64 `json:"score"`

	// AffectedSteps lists step IDs involved in the finding.
	AffectedSteps []string `json:"affected_steps,omitempty"`

	// AffectedMigrations lists migration IDs involved in the finding.
	AffectedMigrations []string `json:"affected_migrations,omitempty"`

	// Description explains what was found.
	Description string `json:"description"`

	// Impact explains the consequence if the plan is applied as-is.
	Impact string `json:"impact,omitempty"`

	// Mitigation suggests how to reduce the risk.
	Mitigation string `json:"mitigation,omitempty"`
}

// RiskLevel is the overall risk level of a plan.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskReport is the full risk assessment of one plan. Recomputed
// whenever inputs change, never partially patched.
type RiskReport struct {
	// ScoringVersion records which algorithm produced the report.
	ScoringVersion string `json:"scoring_version"`

	// Score is the aggregate weighted score in [0,100].
	Score int `json:"score"`

	// Level is the overall level derived from Score.
	Level RiskLevel `json:"level"`

	// Risks is the ordered finding list.
	Risks []Risk `json:"risks"`

	// Warnings are derived human-readable summaries.
	Warnings []string `json:"warnings,omitempty"`

	// Recommendation suggests a review posture for the level.
	Recommendation string `json:"recommendation"`

	// SafeToAutoApply is the conjunctive auto-apply gate.
	SafeToAutoApply bool `json:"safe_to_auto_apply"`
}

// HasSeverityAtLeast reports whether any finding meets the severity.
func (r *RiskReport) HasSeverityAtLeast(s RiskSeverity) bool {
	for _, risk := range r.Risks {
		if risk.Severity.Order() >= s.Order() {
			return true
		}
	}
	return false
}

// HasType reports whether any finding is of the given type.
func (r *RiskReport) HasType(t RiskType) bool {
	for _, risk := range r.Risks {
		if risk.Type == t {
			return true
		}
	}
	return false
}
