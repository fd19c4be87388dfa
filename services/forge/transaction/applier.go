// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/events"
	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
	"github.com/forgeline-ai/forgeline/services/forge/tools"
)

// =============================================================================
// APPLIER
// =============================================================================

// Applier applies a bundle to a workspace through a strict state machine:
// Unpacking, SnapshotCreating, Validating, PreCommands, ApplyingFiles,
// RunningMigrations, PostCommands, Verifying, Complete. Any failure at or
// after SnapshotCreating transitions to RollingBack.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Only one apply
// transaction may be in flight per Applier; a second Apply call returns
// ErrTransactionActive.
type Applier struct {
	workspaceDir string
	fs           tools.FileSystem
	runner       *tools.Runner
	snapshots    *SnapshotStore
	emitter      *events.Emitter
	resolver     ConflictResolver
	verifier     *signature.Verifier
	logger       *slog.Logger
	tracer       *Tracer

	mu     sync.Mutex
	active bool
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithFileSystem overrides the workspace filesystem.
func WithFileSystem(fsys tools.FileSystem) ApplierOption {
	return func(a *Applier) { a.fs = fsys }
}

// WithRunner overrides the lifecycle command runner.
func WithRunner(r *tools.Runner) ApplierOption {
	return func(a *Applier) { a.runner = r }
}

// WithEmitter overrides the progress event emitter.
func WithEmitter(e *events.Emitter) ApplierOption {
	return func(a *Applier) { a.emitter = e }
}

// WithResolver sets the conflict resolution callback. Without one, any
// conflict cancels the transaction.
func WithResolver(r ConflictResolver) ApplierOption {
	return func(a *Applier) { a.resolver = r }
}

// WithVerifier requires a valid bundle signature before anything is
// touched. Without one, unsigned bundles are accepted.
func WithVerifier(v *signature.Verifier) ApplierOption {
	return func(a *Applier) { a.verifier = v }
}

// WithObservability controls metrics recording and tracing.
func WithObservability(metricsOn, tracingOn bool) ApplierOption {
	return func(a *Applier) {
		SetMetricsEnabled(metricsOn)
		a.tracer = NewTracer(a.logger, tracingOn)
	}
}

// NewApplier creates an applier for the workspace at workspaceDir.
func NewApplier(workspaceDir string, opts ...ApplierOption) *Applier {
	logger := slog.Default().With("component", "transaction.Applier")
	a := &Applier{
		workspaceDir: workspaceDir,
		fs:           tools.NewOSFileSystem(workspaceDir),
		runner:       tools.NewRunner(workspaceDir),
		snapshots:    NewSnapshotStore(workspaceDir),
		emitter:      events.NewEmitter(),
		resolver:     func(c *Conflict) (Answer, error) { return Answer{Resolution: ResolutionCancel}, nil },
		logger:       logger,
		tracer:       NewTracer(logger, false),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Events returns the emitter progress events are published on.
func (a *Applier) Events() *events.Emitter {
	return a.emitter
}

// Snapshots returns the snapshot store backing rollback.
func (a *Applier) Snapshots() *SnapshotStore {
	return a.snapshots
}

// =============================================================================
// TRANSACTION STATE
// =============================================================================

// journalEntry records a file's pre-mutation state so rollback can undo
// the mutation exactly.
type journalEntry struct {
	path    string
	existed bool
	content []byte
}

// txn is the mutable state of one in-flight transaction.
type txn struct {
	id        string
	state     State
	enteredAt time.Time
	journal   []journalEntry

	// skip holds paths resolved as keep_local.
	skip map[string]bool

	// merged holds caller-supplied content for manual_merge resolutions.
	merged map[string]string
}

// entryContent returns the content that should land at entry's path,
// honoring manual merges.
func (t *txn) entryContent(entry *bundle.FileEntry) string {
	if c, ok := t.merged[entry.Path]; ok {
		return c
	}
	return entry.Content
}

// =============================================================================
// APPLY
// =============================================================================

// Apply runs one bundle through the full state machine.
//
// # Description
//
//	Validates and (if configured) signature-checks the bundle, snapshots
//	the workspace, resolves conflicts, then performs the bundle's file
//	and migration operations followed by its lifecycle commands. Any
//	failure during or after mutation rolls every touched file back to
//	its pre-apply content.
//
//	Cancellation through ctx is honored up to the end of Validating.
//	Once file mutation begins the transaction runs to completion or to
//	rollback.
//
// # Inputs
//
//	ctx - Context for cancellation before mutation
//	b - The bundle to apply
//
// # Outputs
//
//	*ApplyResult - Terminal state and counts; nil only when the
//	  transaction aborted before mutation
//	error - Non-nil when the transaction did not reach Complete
//
// # Thread Safety
//
// Safe for concurrent use; concurrent calls beyond the first return
// ErrTransactionActive.
func (a *Applier) Apply(ctx context.Context, b *bundle.Bundle) (result *ApplyResult, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if b == nil {
		return nil, ErrNilBundle
	}

	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return nil, ErrTransactionActive
	}
	a.active = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.active = false
		a.mu.Unlock()
	}()

	tx := &txn{
		id:        uuid.New().String(),
		state:     StateUnpacking,
		enteredAt: time.Now(),
		skip:      make(map[string]bool),
		merged:    make(map[string]string),
	}
	a.emitter.SetTransactionID(tx.id)

	ctx, span := a.tracer.StartApply(ctx, tx.id, b.ID, len(b.Files))
	defer func() { a.tracer.EndApply(span, result, err) }()

	logger := LoggerWithTrace(ctx, a.logger)
	start := time.Now()
	incActive(ctx)
	defer func() {
		decActive(ctx)
		if result != nil {
			result.Duration = time.Since(start)
			recordApply(ctx, result.State, result.Duration, result.FilesApplied)
		}
	}()

	logger.Info("apply transaction started",
		slog.String("tx_id", tx.id),
		slog.String("bundle_id", b.ID),
		slog.String("bundle_type", string(b.Type)),
		slog.Int("files", len(b.Files)),
		slog.Int("migrations", len(b.Migrations)),
	)

	result = &ApplyResult{TransactionID: tx.id, State: tx.state}

	// ---- Unpacking -------------------------------------------------------
	a.emitter.Emit(events.TypeUnpacking, nil)
	if err := a.unpack(b); err != nil {
		// Nothing was touched yet; there is no transaction to roll back.
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	// ---- SnapshotCreating ------------------------------------------------
	a.transition(ctx, tx, StateSnapshotCreating, events.TypeSnapshotCreating, nil)
	snapStart := time.Now()
	snap, err := a.snapshots.Create(ctx, "pre-apply "+b.ID)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	recordSnapshot(ctx, time.Since(snapStart))
	result.SnapshotID = snap.ID
	a.emitter.Emit(events.TypeSnapshotCreated, &events.SnapshotData{
		SnapshotID:  snap.ID,
		ArchiveSize: snap.ArchiveSize,
	})

	// ---- Validating ------------------------------------------------------
	a.transition(ctx, tx, StateValidating, events.TypeValidating, nil)
	if err := a.validate(ctx, tx, b); err != nil {
		// Nothing was mutated. The snapshot stays on disk; only the
		// snapshot delete command removes snapshots.
		return nil, err
	}

	// ---- PreCommands -----------------------------------------------------
	a.transition(ctx, tx, StatePreCommands, "", nil)
	if err := a.runCommands(ctx, tx, b, bundle.PhasePreApply, result); err != nil {
		return a.rollback(ctx, tx, result, err)
	}

	// Mutation begins here; ctx cancellation is no longer honored.

	// ---- ApplyingFiles ---------------------------------------------------
	a.transition(ctx, tx, StateApplyingFiles, "", nil)
	if err := a.applyFiles(tx, b, result); err != nil {
		return a.rollback(ctx, tx, result, err)
	}

	// ---- RunningMigrations -----------------------------------------------
	a.transition(ctx, tx, StateRunningMigrations, "", nil)
	if err := a.applyMigrations(tx, b, result); err != nil {
		return a.rollback(ctx, tx, result, err)
	}

	// ---- PostCommands ----------------------------------------------------
	a.transition(ctx, tx, StatePostCommands, "", nil)
	if err := a.runCommands(ctx, tx, b, bundle.PhasePostApply, result); err != nil {
		// The risky part of the transaction is already complete. A post
		// command failure is a warning, not a rollback trigger.
		result.Warnings = append(result.Warnings, fmt.Sprintf("post-command failed: %v", err))
		logger.Warn("post-command failed", slog.String("error", err.Error()))
	}

	// ---- Verifying -------------------------------------------------------
	a.transition(ctx, tx, StateVerifying, events.TypeVerifying, nil)
	if err := a.verify(tx, b); err != nil {
		return a.rollback(ctx, tx, result, err)
	}

	// ---- Complete --------------------------------------------------------
	a.transition(ctx, tx, StateComplete, events.TypeComplete, nil)
	result.State = StateComplete
	logger.Info("apply transaction complete",
		slog.String("tx_id", tx.id),
		slog.Int("files_applied", result.FilesApplied),
		slog.Int("migrations_run", result.MigrationsRun),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// transition advances the state machine, emitting the entry event and
// recording the time spent in the previous state. States whose progress
// is reported per item pass an empty event type and emit inline instead.
func (a *Applier) transition(ctx context.Context, tx *txn, next State, eventType events.Type, data any) {
	a.tracer.RecordStateTransition(ctx, tx.id, tx.state, next, time.Since(tx.enteredAt))
	tx.state = next
	tx.enteredAt = time.Now()
	if eventType != "" {
		a.emitter.Emit(eventType, data)
	}
}

// =============================================================================
// STAGES
// =============================================================================

// unpack validates the bundle's structure and, when a verifier is
// configured, its signature. An invalid signature rejects the bundle
// outright.
func (a *Applier) unpack(b *bundle.Bundle) error {
	validation := bundle.Validate(b)
	if !validation.Valid {
		return fmt.Errorf("bundle validation failed: %s", strings.Join(validation.Errors, "; "))
	}
	if a.verifier != nil {
		verdict, err := bundle.Verify(b, a.verifier)
		if err != nil {
			return fmt.Errorf("verifying bundle signature: %w", err)
		}
		if !verdict.Valid {
			return fmt.Errorf("%w: %s", ErrSignatureRequired, verdict.Reason)
		}
	}
	return nil
}

// validate detects conflicts and resolves them one at a time through the
// resolver. Returns ErrCancelled when the caller cancels; the workspace
// is untouched in every outcome.
func (a *Applier) validate(ctx context.Context, tx *txn, b *bundle.Bundle) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	conflicts, err := detectConflicts(a.fs, b)
	if err != nil {
		return fmt.Errorf("detecting conflicts: %w", err)
	}

	for _, c := range conflicts {
		a.emitter.Emit(events.TypeConflictDetected, &events.ConflictData{Path: c.Path})

		answer, err := a.resolver(c)
		if err != nil {
			return fmt.Errorf("%w: resolving conflict on %s: %v", ErrCancelled, c.Path, err)
		}
		recordConflict(ctx, answer.Resolution)
		a.logger.Info("conflict resolved",
			slog.String("path", c.Path),
			slog.String("resolution", string(answer.Resolution)),
		)

		switch answer.Resolution {
		case ResolutionUseNew:
			// Bundle content wins; nothing to record.
		case ResolutionKeepLocal:
			tx.skip[c.Path] = true
		case ResolutionManualMerge:
			tx.merged[c.Path] = answer.MergedContent
		case ResolutionCancel:
			return fmt.Errorf("%w: conflict on %s", ErrCancelled, c.Path)
		default:
			return fmt.Errorf("%w: unknown resolution %q for %s", ErrCancelled, answer.Resolution, c.Path)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
	}
	return nil
}

// runCommands executes the bundle's lifecycle commands for one phase in
// declaration order. The first failure stops the phase.
func (a *Applier) runCommands(ctx context.Context, tx *txn, b *bundle.Bundle, phase bundle.Phase, result *ApplyResult) error {
	eventType := events.TypePreCommandRunning
	if phase == bundle.PhasePostApply {
		eventType = events.TypePostCommandRunning
	}

	for _, cmd := range b.CommandsFor(phase) {
		a.emitter.Emit(eventType, &events.CommandData{
			Command: cmd.Command,
			Phase:   string(cmd.Phase),
		})

		runResult, err := a.runner.Run(ctx, cmd.Command)
		if runResult != nil {
			result.CommandResults = append(result.CommandResults, runResult)
		}
		if err != nil {
			return fmt.Errorf("command %q: %w", cmd.Command, err)
		}
		if !runResult.Succeeded() {
			return fmt.Errorf("command %q exited with code %d", cmd.Command, runResult.ExitCode)
		}
	}
	return nil
}

// applyFiles performs the bundle's file operations in bundle order,
// journaling each file's pre-mutation state first. Test files are written
// after source files.
func (a *Applier) applyFiles(tx *txn, b *bundle.Bundle, result *ApplyResult) error {
	total := len(b.Files) + len(b.Tests)
	index := 0

	for i := range b.Files {
		entry := &b.Files[i]
		index++
		if tx.skip[entry.Path] {
			continue
		}

		a.emitter.Emit(events.TypeFileApplying, &events.FileData{
			Path:   entry.Path,
			Action: string(entry.Action),
			Index:  index,
			Total:  total,
		})

		var applyErr error
		switch entry.Action {
		case plan.ActionDelete:
			applyErr = a.removeFile(tx, entry.Path)
		default:
			applyErr = a.writeFile(tx, entry.Path, tx.entryContent(entry))
		}
		if applyErr != nil {
			return fmt.Errorf("applying %s: %w", entry.Path, applyErr)
		}

		result.FilesApplied++
		a.emitter.Emit(events.TypeFileApplied, &events.FileData{
			Path:   entry.Path,
			Action: string(entry.Action),
			Index:  index,
			Total:  total,
		})
	}

	for i := range b.Tests {
		entry := &b.Tests[i]
		index++

		a.emitter.Emit(events.TypeFileApplying, &events.FileData{
			Path:   entry.Path,
			Action: string(plan.ActionCreate),
			Index:  index,
			Total:  total,
		})
		if err := a.writeFile(tx, entry.Path, entry.Content); err != nil {
			return fmt.Errorf("applying test %s: %w", entry.Path, err)
		}
		result.FilesApplied++
		a.emitter.Emit(events.TypeFileApplied, &events.FileData{
			Path:   entry.Path,
			Action: string(plan.ActionCreate),
			Index:  index,
			Total:  total,
		})
	}
	return nil
}

// applyMigrations materializes each migration's forward and reverse SQL
// under the workspace's migrations directory. Executing them against a
// database is the job of the bundle's "migrate up" post command.
func (a *Applier) applyMigrations(tx *txn, b *bundle.Bundle, result *ApplyResult) error {
	total := len(b.Migrations)
	for i := range b.Migrations {
		m := &b.Migrations[i]
		a.emitter.Emit(events.TypeMigrationRunning, &events.MigrationData{
			MigrationID: m.ID,
			Index:       i + 1,
			Total:       total,
		})

		upPath := filepath.Join("migrations", m.ID+".up.sql")
		if err := a.writeFile(tx, upPath, m.Forward); err != nil {
			return fmt.Errorf("materializing migration %s: %w", m.ID, err)
		}
		if m.Reverse != "" {
			downPath := filepath.Join("migrations", m.ID+".down.sql")
			if err := a.writeFile(tx, downPath, m.Reverse); err != nil {
				return fmt.Errorf("materializing migration %s: %w", m.ID, err)
			}
		}

		result.MigrationsRun++
		a.emitter.Emit(events.TypeMigrationComplete, &events.MigrationData{
			MigrationID: m.ID,
			Index:       i + 1,
			Total:       total,
		})
	}
	return nil
}

// verify re-reads the workspace and confirms every intended change
// landed. A mismatch triggers rollback even though mutation completed;
// correctness of the final state outweighs avoiding a rollback.
func (a *Applier) verify(tx *txn, b *bundle.Bundle) error {
	for i := range b.Files {
		entry := &b.Files[i]
		if tx.skip[entry.Path] {
			continue
		}

		if entry.Action == plan.ActionDelete {
			exists, err := a.fs.Exists(entry.Path)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", entry.Path, err)
			}
			if exists {
				return fmt.Errorf("verification failed: %s still exists after delete", entry.Path)
			}
			continue
		}

		data, err := a.fs.ReadFile(entry.Path)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", entry.Path, err)
		}
		want := tx.entryContent(entry)
		if string(data) != want {
			return fmt.Errorf("verification failed: %s content does not match", entry.Path)
		}
	}

	for i := range b.Tests {
		entry := &b.Tests[i]
		data, err := a.fs.ReadFile(entry.Path)
		if err != nil {
			return fmt.Errorf("verifying test %s: %w", entry.Path, err)
		}
		if bundle.Checksum(string(data)) != entry.Checksum {
			return fmt.Errorf("verification failed: %s checksum does not match", entry.Path)
		}
	}
	return nil
}

// =============================================================================
// JOURNAL & ROLLBACK
// =============================================================================

// writeFile journals the current state of path and writes content.
func (a *Applier) writeFile(tx *txn, path, content string) error {
	if err := a.journalFile(tx, path); err != nil {
		return err
	}
	return a.fs.WriteFile(path, []byte(content), 0o644)
}

// removeFile journals the current state of path and deletes it.
func (a *Applier) removeFile(tx *txn, path string) error {
	if err := a.journalFile(tx, path); err != nil {
		return err
	}
	return a.fs.Remove(path)
}

func (a *Applier) journalFile(tx *txn, path string) error {
	exists, err := a.fs.Exists(path)
	if err != nil {
		return fmt.Errorf("journaling %s: %w", path, err)
	}
	entry := journalEntry{path: path, existed: exists}
	if exists {
		content, err := a.fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("journaling %s: %w", path, err)
		}
		entry.content = content
	}
	tx.journal = append(tx.journal, entry)
	return nil
}

// rollback restores every journaled file to its pre-apply state, newest
// first. A restoration failure marks the result critical; the workspace
// may be inconsistent and needs operator attention.
func (a *Applier) rollback(ctx context.Context, tx *txn, result *ApplyResult, cause error) (*ApplyResult, error) {
	a.transition(ctx, tx, StateRollingBack, events.TypeRollingBack, &events.ErrorData{
		Error:       cause.Error(),
		Recoverable: true,
	})
	result.Err = cause.Error()
	a.logger.Warn("rolling back transaction",
		slog.String("tx_id", tx.id),
		slog.Int("journaled_files", len(tx.journal)),
		slog.String("cause", cause.Error()),
	)

	var restoreErrs []error
	for i := len(tx.journal) - 1; i >= 0; i-- {
		entry := tx.journal[i]
		var err error
		if entry.existed {
			err = a.fs.WriteFile(entry.path, entry.content, 0o644)
		} else {
			err = a.fs.Remove(entry.path)
		}
		if err != nil {
			restoreErrs = append(restoreErrs, fmt.Errorf("restoring %s: %w", entry.path, err))
		}
	}

	if len(restoreErrs) > 0 {
		restoreErr := errors.Join(restoreErrs...)
		recordRollback(ctx, false)
		a.transition(ctx, tx, StateRollbackFailed, events.TypeRollbackFailed, &events.ErrorData{
			Error:       restoreErr.Error(),
			Recoverable: false,
		})
		result.State = StateRollbackFailed
		result.Critical = true
		a.logger.Error("rollback failed, workspace may be inconsistent",
			slog.String("tx_id", tx.id),
			slog.String("snapshot_id", result.SnapshotID),
			slog.String("error", restoreErr.Error()),
		)
		return result, errors.Join(cause, restoreErr)
	}

	recordRollback(ctx, true)
	a.transition(ctx, tx, StateRolledBack, events.TypeRolledBack, nil)
	result.State = StateRolledBack
	a.logger.Info("transaction rolled back",
		slog.String("tx_id", tx.id),
		slog.Int("files_restored", len(tx.journal)),
	)
	return result, cause
}
