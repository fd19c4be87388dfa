// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events carries asynchronous progress notifications out of the
// apply pipeline.
//
// The event stream is fire-and-forget: producers never block on
// subscriber behavior and a failing handler can never fail the
// transaction it observes.
package events

import "time"

// Type enumerates the closed set of progress event kinds, one per
// pipeline transition.
type Type string

const (
	TypeUnpacking          Type = "unpacking"
	TypeSnapshotCreating   Type = "snapshot_creating"
	TypeSnapshotCreated    Type = "snapshot_created"
	TypeValidating         Type = "validating"
	TypeConflictDetected   Type = "conflict_detected"
	TypePreCommandRunning  Type = "pre_command_running"
	TypeFileApplying       Type = "file_applying"
	TypeFileApplied        Type = "file_applied"
	TypeMigrationRunning   Type = "migration_running"
	TypeMigrationComplete  Type = "migration_complete"
	TypePostCommandRunning Type = "post_command_running"
	TypeVerifying          Type = "verifying"
	TypeComplete           Type = "complete"
	TypeRollingBack        Type = "rolling_back"
	TypeRolledBack         Type = "rolled_back"
	TypeRollbackFailed     Type = "rollback_failed"
)

// Event is one progress notification.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// TransactionID links the event to an apply transaction.
	TransactionID string `json:"transaction_id,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data carries type-specific payloads (the *Data structs below).
	Data any `json:"data,omitempty"`
}

// SnapshotData accompanies snapshot events.
type SnapshotData struct {
	SnapshotID  string `json:"snapshot_id"`
	ArchiveSize int64  `json:"archive_size,omitempty"`
}

// FileData accompanies file application events.
type FileData struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	Index  int    `json:"index"`
	Total  int    `json:"total"`
}

// MigrationData accompanies migration events.
type MigrationData struct {
	MigrationID string `json:"migration_id"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
}

// CommandData accompanies pre/post command events.
type CommandData struct {
	Command string `json:"command"`
	Phase   string `json:"phase"`
}

// ConflictData accompanies conflict detection events.
type ConflictData struct {
	Path       string `json:"path"`
	Resolution string `json:"resolution,omitempty"`
}

// ErrorData accompanies failure events.
type ErrorData struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}
