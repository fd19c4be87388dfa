// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/modfile"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/risk"
)

// SourceFile is one accepted step rendered as a concrete file change.
type SourceFile struct {
	Path        string
	Content     string
	Action      plan.Action
	Layer       plan.Layer
	Description string

	// Baseline is the workspace content the change was generated
	// against; used downstream for conflict detection.
	Baseline string
}

// SourceTest is one generated test to carry in the bundle.
type SourceTest struct {
	Path       string
	Content    string
	SourceFile string
}

// CompileInput gathers everything the compiler packages.
type CompileInput struct {
	Files      []SourceFile
	Tests      []SourceTest
	Migrations []plan.Migration

	PlanID         string
	TokensUsed     int
	GenerationTime time.Duration
}

// Compiler packages accepted plan outputs into a Bundle.
//
// # Description
//
// The compiler computes per-item SHA-256 checksums (identical content
// always yields an identical checksum, independent of invocation
// order), classifies the bundle by its create ratio, and infers the
// commands that must run before or after file application.
//
// # Thread Safety
//
// Compiler is stateless and safe for concurrent use across bundles.
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler creates a bundle compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		logger: slog.Default().With("component", "bundle.Compiler"),
	}
}

// Compile builds an immutable Bundle from the input.
//
// # Inputs
//
//   - in: The accepted files, tests, and migrations. At least one file
//     or migration is required.
//
// # Outputs
//
//   - *Bundle: The compiled, unsigned bundle.
//   - error: Non-nil if the input is structurally empty.
func (c *Compiler) Compile(in CompileInput) (*Bundle, error) {
	if len(in.Files) == 0 && len(in.Migrations) == 0 {
		return nil, fmt.Errorf("bundle input has no files and no migrations")
	}

	b := &Bundle{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Metadata: Metadata{
			TokensUsed:     in.TokensUsed,
			GenerationTime: in.GenerationTime,
			PlanID:         in.PlanID,
		},
	}

	for _, f := range in.Files {
		b.Files = append(b.Files, FileEntry{
			Path:            f.Path,
			Content:         f.Content,
			Action:          f.Action,
			Checksum:        Checksum(f.Content),
			Layer:           f.Layer,
			Description:     f.Description,
			BaselineContent: f.Baseline,
		})
		switch f.Action {
		case plan.ActionCreate:
			b.Metadata.Created++
		case plan.ActionModify:
			b.Metadata.Modified++
		case plan.ActionDelete:
			b.Metadata.Deleted++
		}
	}

	for _, t := range in.Tests {
		b.Tests = append(b.Tests, TestEntry{
			Path:       t.Path,
			Content:    t.Content,
			SourceFile: t.SourceFile,
			Checksum:   Checksum(t.Content),
		})
	}

	for _, m := range in.Migrations {
		b.Migrations = append(b.Migrations, MigrationEntry{
			ID:              m.ID,
			Forward:         m.Forward,
			Reverse:         m.Reverse,
			ForwardChecksum: Checksum(m.Forward),
			ReverseChecksum: Checksum(m.Reverse),
			Risk:            m.DataLossRisk,
		})
	}

	b.Type = classify(b.Metadata)
	b.Commands = c.inferCommands(b)

	c.logger.Info("bundle compiled",
		"bundle_id", b.ID,
		"type", b.Type,
		"files", len(b.Files),
		"tests", len(b.Tests),
		"migrations", len(b.Migrations),
		"commands", len(b.Commands))

	return b, nil
}

// Checksum returns the SHA-256 hex digest of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// classify determines the bundle type from action counts: >80% creates
// is a full bundle, modify-only is a patch, anything else a feature.
func classify(m Metadata) Type {
	total := m.Created + m.Modified + m.Deleted
	if total == 0 {
		return TypeFeature
	}
	createRatio := float64(m.Created) / float64(total)
	switch {
	case createRatio > 0.8:
		return TypeFull
	case m.Created == 0 && m.Modified > 0:
		return TypePatch
	default:
		return TypeFeature
	}
}

// manifestCommands maps dependency manifests to their install command.
var manifestCommands = map[string]string{
	"package.json":     "npm install",
	"requirements.txt": "pip install -r requirements.txt",
	"Gemfile":          "bundle install",
	"Cargo.toml":       "cargo fetch",
}

// inferCommands derives pre/post commands from the bundle contents:
// touched dependency manifests schedule an install before apply, and a
// non-empty migration list schedules a migrate afterwards with risk
// equal to the highest declared migration risk.
func (c *Compiler) inferCommands(b *Bundle) []Command {
	var commands []Command
	seen := map[string]bool{}

	for _, f := range b.Files {
		if f.Action == plan.ActionDelete {
			continue
		}
		base := path.Base(f.Path)

		if base == "go.mod" {
			cmd := "go mod tidy"
			if _, err := modfile.Parse(f.Path, []byte(f.Content), nil); err != nil {
				c.logger.Warn("bundled go.mod does not parse, deferring to download",
					"path", f.Path,
					"error", err)
				cmd = "go mod download"
			}
			if !seen[cmd] {
				seen[cmd] = true
				commands = append(commands, Command{Command: cmd, Phase: PhasePreApply, Risk: "low"})
			}
			continue
		}

		if install, ok := manifestCommands[base]; ok && !seen[install] {
			seen[install] = true
			commands = append(commands, Command{Command: install, Phase: PhasePreApply, Risk: "low"})
		}
	}

	if len(b.Migrations) > 0 {
		commands = append(commands, Command{
			Command: "migrate up",
			Phase:   PhasePostApply,
			Risk:    string(maxMigrationRisk(b.Migrations)),
		})
	}

	return commands
}

// maxMigrationRisk returns the highest declared risk across migrations.
// Undeclared risks count as low.
func maxMigrationRisk(migrations []MigrationEntry) risk.Severity {
	max := risk.SeverityLow
	for _, m := range migrations {
		if m.Risk == "" {
			continue
		}
		if s := risk.ParseSeverity(m.Risk); s.Order() > max.Order() {
			max = s
		}
	}
	return max
}
