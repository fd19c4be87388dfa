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
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator expands a feature specification into atomic change steps.
//
// # Description
//
// For every declared model, route, and component the generator emits one
// create step targeting a layer-appropriate location. When a feature
// declares no structured sub-parts, a single general-layer step is
// emitted with a target inferred from the workspace analysis (detected
// framework, API convention) or a default path.
//
// # Thread Safety
//
// Generator is safe for concurrent use; it holds no mutable state.
type Generator struct {
	analysis Analysis
	logger   *slog.Logger
}

// NewGenerator creates a step generator bound to a workspace analysis.
func NewGenerator(analysis Analysis) *Generator {
	return &Generator{
		analysis: analysis,
		logger:   slog.Default().With("component", "plan.Generator"),
	}
}

// Generate emits the steps for a single feature.
//
// # Inputs
//
//   - feature: The feature specification. Name must be non-empty.
//
// # Outputs
//
//   - []Step: One step per declared sub-part, or one general step.
//   - error: Non-nil if the feature is structurally invalid.
func (g *Generator) Generate(feature FeatureSpec) ([]Step, error) {
	if feature.Name == "" {
		return nil, fmt.Errorf("feature name is required")
	}

	featureID := slugify(feature.Name)
	var steps []Step

	for _, model := range feature.Models {
		steps = append(steps, Step{
			ID:              uuid.NewString(),
			FeatureID:       featureID,
			Action:          ActionCreate,
			Target:          g.modelTarget(model),
			Layer:           LayerDatabase,
			EstimatedTokens: defaultStepTokens,
			Description:     fmt.Sprintf("Create model %s", model),
		})
	}

	for _, route := range feature.Routes {
		steps = append(steps, Step{
			ID:              uuid.NewString(),
			FeatureID:       featureID,
			Action:          ActionCreate,
			Target:          g.routeTarget(route),
			Layer:           LayerBackend,
			EstimatedTokens: defaultStepTokens,
			Description:     fmt.Sprintf("Create route %s", route),
		})
	}

	for _, component := range feature.Components {
		steps = append(steps, Step{
			ID:              uuid.NewString(),
			FeatureID:       featureID,
			Action:          ActionCreate,
			Target:          g.componentTarget(component),
			Layer:           LayerFrontend,
			EstimatedTokens: defaultStepTokens,
			Description:     fmt.Sprintf("Create component %s", component),
		})
	}

	// Unstructured feature: a single general step at an inferred path.
	if len(steps) == 0 {
		steps = append(steps, Step{
			ID:              uuid.NewString(),
			FeatureID:       featureID,
			Action:          ActionCreate,
			Target:          g.generalTarget(featureID),
			Layer:           LayerGeneral,
			EstimatedTokens: defaultStepTokens,
			Description:     feature.Description,
		})
	}

	g.logger.Debug("generated steps",
		"feature", featureID,
		"count", len(steps))

	return steps, nil
}

// defaultStepTokens is the initial cost estimate for a generated step.
const defaultStepTokens = 1500

func (g *Generator) modelTarget(model string) string {
	return path.Join("server", "models", slugify(model)+".model")
}

func (g *Generator) routeTarget(route string) string {
	name := slugify(strings.TrimPrefix(route, "/"))
	if name == "" {
		name = "index"
	}
	switch g.analysis.APIConvention {
	case "rpc":
		return path.Join("server", "rpc", name+".handler")
	default:
		return path.Join("server", "routes", name+".route")
	}
}

func (g *Generator) componentTarget(component string) string {
	dir := "src/components"
	switch g.analysis.Framework {
	case "vue":
		return path.Join(dir, component+".vue")
	case "svelte":
		return path.Join(dir, component+".svelte")
	default:
		return path.Join(dir, component+".tsx")
	}
}

func (g *Generator) generalTarget(featureID string) string {
	root := g.analysis.SourceRoot
	if root == "" {
		root = "src"
	}
	return path.Join(root, featureID+".impl")
}

// slugify lowercases and hyphenates an identifier for use in IDs and
// paths.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
