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
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
)

// Engine runs the detector registry over a plan and aggregates the
// findings into a Report.
//
// # Description
//
// Detectors are independent and pure, so the engine runs them
// concurrently; the aggregate score is only computed once every
// detector has completed. The registry is explicit and inspectable:
// construction takes the detector set, nothing is discovered at
// runtime.
//
// # Thread Safety
//
// Engine is safe for concurrent use across independent plans.
type Engine struct {
	detectors  []Detector
	thresholds Thresholds
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithThresholds overrides the default level thresholds.
func WithThresholds(t Thresholds) EngineOption {
	return func(e *Engine) {
		e.thresholds = t
	}
}

// WithDetectors replaces the detector registry.
func WithDetectors(detectors ...Detector) EngineOption {
	return func(e *Engine) {
		e.detectors = detectors
	}
}

// NewEngine creates a risk engine with the default detector registry.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		detectors:  DefaultDetectors(),
		thresholds: DefaultThresholds(),
		logger:     slog.Default().With("component", "risk.Engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Detectors returns the names of the registered detectors, in order.
func (e *Engine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Assess scores the plan and decides the auto-apply gate.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - p: The scheduled plan. Read-only.
//
// # Outputs
//
//   - *Report: The full assessment. Never nil on success.
//   - error: Non-nil only if assessment itself fails.
func (e *Engine) Assess(ctx context.Context, p *plan.Plan) (*Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}

	in := &Input{Steps: p.Steps, Migrations: p.Migrations}

	// Run detectors concurrently; results land in registry order so the
	// report is deterministic.
	results := make([][]Risk, len(e.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		g.Go(func() error {
			results[i] = d.Detect(gctx, in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running detectors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var risks []Risk
	for _, r := range results {
		risks = append(risks, r...)
	}

	score := aggregateScore(risks)
	level := e.thresholds.LevelFor(score)

	report := &Report{
		ScoringVersion: ScoringVersion,
		Score:          score,
		Level:          level,
		Risks:          risks,
		Warnings:       buildWarnings(risks, in),
		Recommendation: recommendations[level],
	}
	report.SafeToAutoApply = e.safeToAutoApply(report)

	e.logger.Info("plan assessed",
		"plan_id", p.ID,
		"score", score,
		"level", level,
		"risks", len(risks),
		"auto_apply", report.SafeToAutoApply)

	return report, nil
}

// aggregateScore computes the severity-weighted mean of the finding
// scores, amplified by finding count and clamped to [0,100].
func aggregateScore(risks []Risk) int {
	if len(risks) == 0 {
		return 0
	}

	var weighted, weights float64
	for _, r := range risks {
		w := severityWeight(r.Severity)
		weighted += r.Score * w
		weights += w
	}

	score := weighted / weights
	multiplier := math.Min(1+0.05*float64(len(risks)), 1.5)
	score = math.Round(score * multiplier)

	return int(math.Max(0, math.Min(100, score)))
}

// safeToAutoApply is the conjunctive, order-independent auto-apply
// gate. Any single violation disables unattended application.
func (e *Engine) safeToAutoApply(r *Report) bool {
	if r.Score >= e.thresholds.AutoApply {
		return false
	}
	if r.HasSeverityAtLeast(SeverityHigh) {
		return false
	}
	if r.HasType(TypeDataLoss) {
		return false
	}
	if r.HasType(TypeBreakingChange) {
		return false
	}
	return true
}

// buildWarnings derives human-readable summaries from the findings.
func buildWarnings(risks []Risk, in *Input) []string {
	var warnings []string

	high := 0
	for _, r := range risks {
		if r.Severity.Order() >= SeverityHigh.Order() {
			high++
		}
	}
	if high > 0 {
		warnings = append(warnings,
			fmt.Sprintf("%d high or critical severity risk(s) found", high))
	}

	byType := map[Type]int{}
	for _, r := range risks {
		byType[r.Type]++
	}
	if n := byType[TypeDataLoss]; n > 0 {
		warnings = append(warnings,
			fmt.Sprintf("%d data-loss risk(s): review deletions and migrations", n))
	}
	if n := byType[TypeBreakingChange]; n > 0 {
		warnings = append(warnings,
			fmt.Sprintf("%d breaking change(s): downstream consumers may be affected", n))
	}
	if n := byType[TypeSecurity]; n > 0 {
		warnings = append(warnings,
			fmt.Sprintf("%d security-sensitive change(s)", n))
	}
	if tokens := in.TotalTokens(); tokens > TokenBudget {
		warnings = append(warnings,
			fmt.Sprintf("estimated token cost %d exceeds the %d budget", tokens, TokenBudget))
	}

	return warnings
}
