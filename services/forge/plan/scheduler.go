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
	"log/slog"
	"sort"
)

// Scheduler produces one total order over all steps consistent with the
// layer priority and the dependency edges from resolution.
//
// # Description
//
// Steps are first stably sorted by layer priority (ties keep relative
// order), then emitted by depth-first topological traversal starting
// from each step in the pre-sorted order, visiting dependencies before
// emitting a step. A "permanently visited" set guards against duplicate
// emission.
//
// Cycles are tolerated by policy rather than failing the build: a
// dependency edge reaching a step that is still on the current
// recursion path is dropped by BreakCycles, degrading the result to a
// partial order. Plan construction must always produce an orderable
// result so the risk engine can flag the cycle instead of the build
// aborting silently.
//
// # Thread Safety
//
// Scheduler is stateless and safe for concurrent use.
type Scheduler struct {
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		logger: slog.Default().With("component", "plan.Scheduler"),
	}
}

// BreakCycles is the cycle-tolerance policy: it decides whether the
// edge from a step to a dependency currently on the recursion path is
// followed or dropped. The default policy always drops the edge.
//
// Exposed as a named function so the behavior is testable in isolation
// from scheduling.
func BreakCycles(stepID, dependencyID string) bool {
	// True means: drop the back-edge and continue emission.
	return true
}

// Schedule reorders the given steps. No step is created, duplicated, or
// lost; the output is a permutation of the input.
func (s *Scheduler) Schedule(steps []Step) []Step {
	// Stable layer-priority pre-sort.
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Layer.Priority() < sorted[j].Layer.Priority()
	})

	byID := make(map[string]*Step, len(sorted))
	for i := range sorted {
		byID[sorted[i].ID] = &sorted[i]
	}

	ordered := make([]Step, 0, len(sorted))
	permanent := make(map[string]bool, len(sorted))
	onPath := make(map[string]bool)

	var visit func(step *Step)
	visit = func(step *Step) {
		if permanent[step.ID] {
			return
		}
		onPath[step.ID] = true
		for _, depID := range step.Dependencies {
			dep, ok := byID[depID]
			if !ok {
				// Missing reference: surfaced later by the risk
				// engine's dependency detector, not fatal here.
				continue
			}
			if onPath[depID] {
				if BreakCycles(step.ID, depID) {
					s.logger.Warn("dependency cycle detected, dropping edge",
						"step", step.ID,
						"dependency", depID)
					continue
				}
			}
			visit(dep)
		}
		onPath[step.ID] = false
		permanent[step.ID] = true
		ordered = append(ordered, *step)
	}

	for i := range sorted {
		visit(&sorted[i])
	}

	return ordered
}
