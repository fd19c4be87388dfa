// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bundle compiles accepted plan outputs into a signed,
// checksummed artifact ready for transactional application.
package bundle

import (
	"time"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
)

// Type classifies a bundle by the shape of its file changes.
type Type string

const (
	// TypePatch is a modify-dominant bundle with no created files.
	TypePatch Type = "patch"

	// TypeFeature is a mixed create/modify bundle.
	TypeFeature Type = "feature"

	// TypeFull is a creation-dominant bundle (>80% creates).
	TypeFull Type = "full"
)

// Phase is when an inferred command runs relative to file application.
type Phase string

const (
	PhasePreApply  Phase = "pre_apply"
	PhasePostApply Phase = "post_apply"
)

// FileEntry is one file change carried by a bundle.
type FileEntry struct {
	// Path is the workspace-relative target path.
	Path string `json:"path" validate:"required"`

	// Content is the full new content. Empty for deletes.
	Content string `json:"content"`

	// Action is create, modify, or delete.
	Action plan.Action `json:"action" validate:"required,oneof=create modify delete"`

	// Checksum is the SHA-256 hex digest of Content.
	Checksum string `json:"checksum" validate:"required,len=64,hexadecimal"`

	// Layer is the architectural tier of the change.
	Layer plan.Layer `json:"layer,omitempty"`

	// Description explains the change.
	Description string `json:"description,omitempty"`

	// BaselineContent is the content the plan was built against, used
	// for conflict detection on modify/delete. Empty for creates.
	BaselineContent string `json:"baseline_content,omitempty"`
}

// TestEntry is one generated test carried by a bundle.
type TestEntry struct {
	// Path is the workspace-relative test path.
	Path string `json:"path" validate:"required"`

	// Content is the test file content.
	Content string `json:"content"`

	// SourceFile references the file the test covers.
	SourceFile string `json:"source_file,omitempty"`

	// Checksum is the SHA-256 hex digest of Content.
	Checksum string `json:"checksum" validate:"required,len=64,hexadecimal"`
}

// MigrationEntry is one database migration carried by a bundle.
type MigrationEntry struct {
	// ID uniquely identifies the migration.
	ID string `json:"id" validate:"required"`

	// Forward is the statement that applies the migration.
	Forward string `json:"forward" validate:"required"`

	// Reverse undoes the migration; may be empty.
	Reverse string `json:"reverse,omitempty"`

	// ForwardChecksum and ReverseChecksum are SHA-256 hex digests of
	// the respective statements.
	ForwardChecksum string `json:"forward_checksum" validate:"required,len=64,hexadecimal"`
	ReverseChecksum string `json:"reverse_checksum" validate:"required,len=64,hexadecimal"`

	// Risk is the declared data-loss risk (low, medium, high, critical).
	Risk string `json:"risk,omitempty"`
}

// Command is an inferred command that must run before or after file
// application.
type Command struct {
	// Command is the shell command line.
	Command string `json:"command" validate:"required"`

	// Phase is pre_apply or post_apply.
	Phase Phase `json:"phase" validate:"required,oneof=pre_apply post_apply"`

	// Risk is the aggregated risk level of running the command.
	Risk string `json:"risk,omitempty"`
}

// Metadata aggregates bundle-level counters.
type Metadata struct {
	// TokensUsed is the generation cost reported by the producer.
	TokensUsed int `json:"tokens_used,omitempty"`

	// GenerationTime is how long production took.
	GenerationTime time.Duration `json:"generation_time,omitempty"`

	// Created, Modified, Deleted count files by action.
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`

	// PlanID links back to the plan the bundle was compiled from.
	PlanID string `json:"plan_id,omitempty"`
}

// Bundle is the content-addressed artifact compiled from an accepted
// plan. Immutable once compiled; signing attaches a Signature but does
// not otherwise mutate the bundle.
type Bundle struct {
	// ID uniquely identifies the bundle.
	ID string `json:"id" validate:"required"`

	// Type classifies the bundle.
	Type Type `json:"type" validate:"required,oneof=patch feature full"`

	// CreatedAt is the compilation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Files are the file changes, in application order.
	Files []FileEntry `json:"files" validate:"dive"`

	// Tests are the generated tests.
	Tests []TestEntry `json:"tests,omitempty" validate:"dive"`

	// Migrations are the database changes, in application order.
	Migrations []MigrationEntry `json:"migrations,omitempty" validate:"dive"`

	// Commands are inferred pre/post commands.
	Commands []Command `json:"commands,omitempty" validate:"dive"`

	// Metadata aggregates counters.
	Metadata Metadata `json:"metadata"`

	// Signature is attached by the signer; nil while unsigned.
	Signature *signature.Signature `json:"signature,omitempty"`
}

// CommandsFor returns the commands scheduled for the given phase, in
// bundle order.
func (b *Bundle) CommandsFor(phase Phase) []Command {
	var out []Command
	for _, c := range b.Commands {
		if c.Phase == phase {
			out = append(out, c)
		}
	}
	return out
}
