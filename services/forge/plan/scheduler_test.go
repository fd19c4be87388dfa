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

// indexOf returns the position of a step ID in the ordered output.
func indexOf(t *testing.T, steps []Step, id string) int {
	t.Helper()
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	t.Fatalf("step %s not found in output", id)
	return -1
}

func TestSchedule_DependenciesBeforeDependents(t *testing.T) {
	steps := []Step{
		{ID: "db", FeatureID: "f", Layer: LayerDatabase},
		{ID: "backend", FeatureID: "f", Layer: LayerBackend, Dependencies: []string{"db"}},
		{ID: "frontend", FeatureID: "f", Layer: LayerFrontend, Dependencies: []string{"backend", "db"}},
	}

	out := NewScheduler().Schedule(steps)

	require.Len(t, out, 3)
	assert.Equal(t, "db", out[0].ID)
	assert.Equal(t, "backend", out[1].ID)
	assert.Equal(t, "frontend", out[2].ID)
}

func TestSchedule_LayerPriorityWithoutDependencies(t *testing.T) {
	steps := []Step{
		{ID: "t", Layer: LayerTest},
		{ID: "g", Layer: LayerGeneral},
		{ID: "f", Layer: LayerFrontend},
		{ID: "b", Layer: LayerBackend},
		{ID: "d", Layer: LayerDatabase},
	}

	out := NewScheduler().Schedule(steps)

	require.Len(t, out, 5)
	assert.Equal(t, []string{"d", "b", "f", "g", "t"},
		[]string{out[0].ID, out[1].ID, out[2].ID, out[3].ID, out[4].ID})
}

func TestSchedule_StableWithinLayer(t *testing.T) {
	steps := []Step{
		{ID: "b1", Layer: LayerBackend},
		{ID: "b2", Layer: LayerBackend},
		{ID: "b3", Layer: LayerBackend},
	}

	out := NewScheduler().Schedule(steps)

	require.Len(t, out, 3)
	assert.Equal(t, "b1", out[0].ID)
	assert.Equal(t, "b2", out[1].ID)
	assert.Equal(t, "b3", out[2].ID)
}

func TestSchedule_ThreeCycleTerminates(t *testing.T) {
	steps := []Step{
		{ID: "s1", Layer: LayerGeneral, Dependencies: []string{"s2"}},
		{ID: "s2", Layer: LayerGeneral, Dependencies: []string{"s3"}},
		{ID: "s3", Layer: LayerGeneral, Dependencies: []string{"s1"}},
	}

	out := NewScheduler().Schedule(steps)

	// All three steps exactly once, no duplicates, no loss.
	require.Len(t, out, 3)
	seen := map[string]int{}
	for _, s := range out {
		seen[s.ID]++
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		assert.Equal(t, 1, seen[id], "step %s emitted once", id)
	}
}

func TestSchedule_MissingDependencyIgnored(t *testing.T) {
	steps := []Step{
		{ID: "a", Layer: LayerBackend, Dependencies: []string{"ghost"}},
	}

	out := NewScheduler().Schedule(steps)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestSchedule_AcyclicPropertyAcrossFeatures(t *testing.T) {
	steps := []Step{
		{ID: "f2-front", FeatureID: "f2", Layer: LayerFrontend, Dependencies: []string{"f2-db"}},
		{ID: "f1-db", FeatureID: "f1", Layer: LayerDatabase},
		{ID: "f2-db", FeatureID: "f2", Layer: LayerDatabase},
		{ID: "f1-back", FeatureID: "f1", Layer: LayerBackend, Dependencies: []string{"f1-db"}},
	}

	out := NewScheduler().Schedule(steps)
	require.Len(t, out, 4)

	for _, s := range out {
		for _, dep := range s.Dependencies {
			assert.Less(t, indexOf(t, out, dep), indexOf(t, out, s.ID),
				"dependency %s must precede %s", dep, s.ID)
		}
	}
}

func TestBreakCycles_DropsBackEdge(t *testing.T) {
	assert.True(t, BreakCycles("a", "b"))
}
