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

// Resolver adds implicit ordering edges between steps.
//
// # Description
//
// The resolution rule is closed and deterministic: within a feature,
// every backend step depends on all database steps, and every frontend
// step depends on all backend and database steps. No cross-feature
// inference is attempted. Dependencies are maintained as a set, so
// repeated resolution is idempotent.
//
// # Thread Safety
//
// Resolver is stateless and safe for concurrent use.
type Resolver struct{}

// NewResolver creates a dependency resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve mutates the given steps in place, adding implicit
// dependencies. Explicit dependencies already present are preserved.
func (r *Resolver) Resolve(steps []Step) {
	// Index database and backend steps per feature.
	dbByFeature := make(map[string][]string)
	backendByFeature := make(map[string][]string)
	for _, s := range steps {
		switch s.Layer {
		case LayerDatabase:
			dbByFeature[s.FeatureID] = append(dbByFeature[s.FeatureID], s.ID)
		case LayerBackend:
			backendByFeature[s.FeatureID] = append(backendByFeature[s.FeatureID], s.ID)
		}
	}

	for i := range steps {
		s := &steps[i]
		switch s.Layer {
		case LayerBackend:
			for _, id := range dbByFeature[s.FeatureID] {
				s.AddDependency(id)
			}
		case LayerFrontend:
			for _, id := range dbByFeature[s.FeatureID] {
				s.AddDependency(id)
			}
			for _, id := range backendByFeature[s.FeatureID] {
				s.AddDependency(id)
			}
		}
	}
}
