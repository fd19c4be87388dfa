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
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanVersion is the current plan schema version.
const PlanVersion = "1.0"

// DefaultMaxSteps bounds plan size; plans above the limit are rejected
// at build time as a structural validation error.
const DefaultMaxSteps = 200

// Builder assembles a complete Plan from feature specifications:
// generation, dependency resolution, scheduling, test derivation, and
// resource estimation.
//
// # Thread Safety
//
// Builder is safe for concurrent use.
type Builder struct {
	generator *Generator
	resolver  *Resolver
	scheduler *Scheduler
	maxSteps  int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxSteps overrides the step-count limit.
func WithMaxSteps(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxSteps = n
		}
	}
}

// NewBuilder creates a plan builder bound to a workspace analysis.
func NewBuilder(analysis Analysis, opts ...BuilderOption) *Builder {
	b := &Builder{
		generator: NewGenerator(analysis),
		resolver:  NewResolver(),
		scheduler: NewScheduler(),
		maxSteps:  DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs an immutable Plan for the given features and
// migrations.
//
// # Inputs
//
//   - features: One or more feature specifications.
//   - migrations: Database changes the plan requires. May be empty.
//
// # Outputs
//
//   - *Plan: The scheduled plan.
//   - error: Non-nil on structural validation failure (no features, or
//     step count above the configured limit).
func (b *Builder) Build(features []FeatureSpec, migrations []Migration) (*Plan, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("at least one feature is required")
	}

	var steps []Step
	for _, f := range features {
		generated, err := b.generator.Generate(f)
		if err != nil {
			return nil, fmt.Errorf("generating steps for %q: %w", f.Name, err)
		}
		steps = append(steps, generated...)
	}

	if len(steps) > b.maxSteps {
		return nil, fmt.Errorf("plan has %d steps, limit is %d", len(steps), b.maxSteps)
	}

	b.resolver.Resolve(steps)
	steps = b.scheduler.Schedule(steps)

	tests := deriveTests(steps)

	p := &Plan{
		Version:    PlanVersion,
		ID:         uuid.NewString(),
		Steps:      steps,
		Migrations: migrations,
		Tests:      tests,
		CreatedAt:  time.Now(),
	}
	p.Estimate = Estimate{
		Tokens:   p.TotalTokens(),
		Files:    len(steps),
		Duration: estimateDuration(len(steps), len(migrations)),
	}
	p.Metadata = Metadata{
		StepCount:      len(steps),
		MigrationCount: len(migrations),
		TestCount:      len(tests),
	}

	return p, nil
}

// deriveTests produces one test spec per non-test create/modify step.
func deriveTests(steps []Step) []TestSpec {
	var tests []TestSpec
	for _, s := range steps {
		if s.Layer == LayerTest || s.Action == ActionDelete {
			continue
		}
		dir := path.Dir(s.Target)
		base := strings.TrimSuffix(path.Base(s.Target), path.Ext(s.Target))
		tests = append(tests, TestSpec{
			Path:         path.Join(dir, "__tests__", base+".test"),
			SourceTarget: s.Target,
		})
	}
	return tests
}

// estimateDuration projects wall time from plan size. Rough by intent;
// it feeds a resource estimate, not a scheduler.
func estimateDuration(steps, migrations int) time.Duration {
	return time.Duration(steps)*30*time.Second +
		time.Duration(migrations)*10*time.Second
}
