// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transaction applies a compiled bundle to a workspace as a single
// atomic unit. A snapshot of the pre-apply tree is taken first; any failure
// during or after mutation rolls the workspace back to that snapshot.
package transaction

import (
	"errors"
	"time"

	"github.com/forgeline-ai/forgeline/services/forge/tools"
)

// =============================================================================
// STATES
// =============================================================================

// State is one stage of the apply state machine. States advance strictly
// in declaration order; RollingBack is reachable from any state at or
// after SnapshotCreating.
type State string

const (
	StateUnpacking         State = "unpacking"
	StateSnapshotCreating  State = "snapshot_creating"
	StateValidating        State = "validating"
	StatePreCommands       State = "pre_commands"
	StateApplyingFiles     State = "applying_files"
	StateRunningMigrations State = "running_migrations"
	StatePostCommands      State = "post_commands"
	StateVerifying         State = "verifying"
	StateComplete          State = "complete"
	StateRollingBack       State = "rolling_back"
	StateRolledBack        State = "rolled_back"
	StateRollbackFailed    State = "rollback_failed"
)

// Terminal reports whether the state ends the transaction.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateRolledBack, StateRollbackFailed:
		return true
	}
	return false
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context was passed to Apply.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilBundle indicates a nil bundle was passed to Apply.
	ErrNilBundle = errors.New("bundle must not be nil")

	// ErrTransactionActive indicates an apply transaction is already in
	// flight for this workspace. Only one may run at a time.
	ErrTransactionActive = errors.New("a transaction is already active")

	// ErrCancelled indicates the transaction was cancelled before any
	// mutation, either through the context or a conflict resolution of
	// ResolutionCancel. The workspace is untouched.
	ErrCancelled = errors.New("transaction cancelled before mutation")

	// ErrSignatureRequired indicates the bundle carried no valid
	// signature and the applier is configured to require one.
	ErrSignatureRequired = errors.New("bundle signature missing or invalid")
)

// =============================================================================
// CONFLICTS
// =============================================================================

// Resolution is the caller's answer to a detected conflict.
type Resolution string

const (
	// ResolutionUseNew applies the bundle's content, discarding the
	// local change.
	ResolutionUseNew Resolution = "use_new"

	// ResolutionKeepLocal leaves the workspace file as it is and skips
	// the bundle's change for that path.
	ResolutionKeepLocal Resolution = "keep_local"

	// ResolutionManualMerge applies caller-supplied merged content in
	// place of the bundle's content.
	ResolutionManualMerge Resolution = "manual_merge"

	// ResolutionCancel aborts the whole transaction before any mutation.
	ResolutionCancel Resolution = "cancel"
)

// Conflict describes a file whose workspace content diverged from the
// content the plan was built against.
type Conflict struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`

	// BundleContent is what the bundle wants to write.
	BundleContent string `json:"-"`

	// LocalContent is what the workspace currently holds.
	LocalContent string `json:"-"`

	// Diff is a unified diff from the expected baseline to the local
	// content, for display to the caller.
	Diff string `json:"diff,omitempty"`
}

// Answer is a resolver's decision for one conflict.
type Answer struct {
	Resolution Resolution

	// MergedContent is required when Resolution is ResolutionManualMerge
	// and ignored otherwise.
	MergedContent string
}

// ConflictResolver decides, one conflict at a time, how a divergence is
// handled. Returning ResolutionCancel or an error aborts the transaction
// before any mutation.
type ConflictResolver func(c *Conflict) (Answer, error)

// =============================================================================
// RESULT
// =============================================================================

// ApplyResult summarizes a finished apply transaction.
type ApplyResult struct {
	// TransactionID identifies the transaction in logs and events.
	TransactionID string `json:"transaction_id"`

	// State is the terminal state the transaction reached.
	State State `json:"state"`

	// SnapshotID names the pre-apply snapshot, empty if the transaction
	// failed before the snapshot was taken.
	SnapshotID string `json:"snapshot_id,omitempty"`

	// FilesApplied counts file operations that completed.
	FilesApplied int `json:"files_applied"`

	// MigrationsRun counts migrations that were materialized.
	MigrationsRun int `json:"migrations_run"`

	// CommandResults holds the outcome of each lifecycle command, in
	// execution order.
	CommandResults []*tools.RunResult `json:"command_results,omitempty"`

	// Warnings holds non-fatal problems, such as post-command failures.
	Warnings []string `json:"warnings,omitempty"`

	// Err is the failure that triggered rollback, empty on success.
	Err string `json:"error,omitempty"`

	// Critical is true when rollback itself failed and the workspace may
	// be inconsistent. Operator intervention is required.
	Critical bool `json:"critical"`

	// Duration is total wall-clock time for the transaction.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the transaction completed without rollback.
func (r *ApplyResult) Succeeded() bool {
	return r != nil && r.State == StateComplete
}
