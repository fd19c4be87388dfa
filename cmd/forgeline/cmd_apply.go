// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/events"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
	"github.com/forgeline-ai/forgeline/services/forge/telemetry"
	"github.com/forgeline-ai/forgeline/services/forge/tools"
	"github.com/forgeline-ai/forgeline/services/forge/transaction"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	applyFromStore  bool
	applyOnConflict string
	applyNoVerify   bool
	applyJSON       bool
	applyTimeout    time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var applyCmd = &cobra.Command{
	Use:   "apply <bundle.json | bundle-id>",
	Short: "Apply a bundle to the workspace transactionally",
	Long: `Apply a compiled bundle to the workspace as a single unit.

A snapshot of the workspace is taken before any change. If any file
write, migration, or verification fails, every change already made is
rolled back and the workspace is left exactly as it was.

Conflicts arise when a file diverged from the content the bundle was
generated against. The --on-conflict policy decides what happens:

  cancel      Abort the apply, leaving the workspace untouched (default)
  use-new     Apply the bundle content anyway
  keep-local  Keep the workspace content, skip the file

Examples:
  forgeline apply bundle.json
  forgeline apply --from-store 4f2a91c0
  forgeline apply bundle.json --on-conflict use-new
  forgeline apply bundle.json --no-verify    # Skip signature check

Exit Codes:
  0 = Applied cleanly
  1 = Apply failed (rolled back, or rollback itself failed)`,
	Args: cobra.ExactArgs(1),
	RunE: runApplyCommand,
}

func init() {
	applyCmd.Flags().BoolVar(&applyFromStore, "from-store", false,
		"Treat the argument as a stored bundle ID")
	applyCmd.Flags().StringVar(&applyOnConflict, "on-conflict", "cancel",
		"Conflict policy: cancel, use-new, keep-local")
	applyCmd.Flags().BoolVar(&applyNoVerify, "no-verify", false,
		"Skip signature verification")
	applyCmd.Flags().DurationVar(&applyTimeout, "timeout", 30*time.Minute,
		"Total apply timeout")

	applyCmd.Flags().BoolVar(&applyJSON, "json", false,
		"Output the result as JSON")

	rootCmd.AddCommand(applyCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runApplyCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	b, err := loadApplyBundle(ctx, args[0])
	if err != nil {
		return err
	}

	resolver, err := conflictResolver(applyOnConflict)
	if err != nil {
		return err
	}

	shutdown, err := initApplyTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown()

	opts := []transaction.ApplierOption{
		transaction.WithRunner(tools.NewRunner(workspaceDir,
			tools.WithTimeout(cfg.Apply.CommandTimeout),
			tools.WithMaxOutput(cfg.Apply.MaxOutputBytes),
		)),
		transaction.WithResolver(resolver),
		transaction.WithObservability(cfg.Telemetry.MetricsEnabled, cfg.Telemetry.TracingEnabled),
	}
	if cfg.Apply.RequireSignature && !applyNoVerify {
		keys, err := loadKeys()
		if err != nil {
			return fmt.Errorf("load keys: %w", err)
		}
		opts = append(opts, transaction.WithVerifier(signature.NewVerifier(keys.PublicKey())))
	}

	applier := transaction.NewApplier(workspaceDir, opts...)
	var progressID string
	if !applyJSON {
		progressID = applier.Events().Subscribe(progressHandler)
	}

	result, err := applier.Apply(ctx, b)
	if progressID != "" {
		// Drain queued progress lines before the summary.
		applier.Events().Unsubscribe(progressID)
	}
	if err != nil && result == nil {
		return fmt.Errorf("apply bundle: %w", err)
	}

	if applyJSON {
		if jsonErr := outputJSON(result); jsonErr != nil {
			return jsonErr
		}
	} else {
		outputApplyText(result)
	}

	if !result.Succeeded() {
		return fmt.Errorf("apply failed in state %s: %s", result.State, result.Err)
	}
	return nil
}

// loadApplyBundle resolves the argument as a file path or a stored ID.
func loadApplyBundle(ctx context.Context, ref string) (*bundle.Bundle, error) {
	if !applyFromStore {
		return readBundleFile(ref)
	}
	st, err := openBundleStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return st.Get(ctx, ref)
}

func conflictResolver(policy string) (transaction.ConflictResolver, error) {
	var resolution transaction.Resolution
	switch policy {
	case "cancel":
		resolution = transaction.ResolutionCancel
	case "use-new":
		resolution = transaction.ResolutionUseNew
	case "keep-local":
		resolution = transaction.ResolutionKeepLocal
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", policy)
	}
	return func(c *transaction.Conflict) (transaction.Answer, error) {
		if resolution != transaction.ResolutionUseNew {
			ux.Warning(fmt.Sprintf("Conflict: %s diverged from the expected content", c.Path))
		}
		return transaction.Answer{Resolution: resolution}, nil
	}, nil
}

// initApplyTelemetry starts exporters and, when metrics are on, the
// Prometheus scrape endpoint.
func initApplyTelemetry(ctx context.Context) (func(), error) {
	if !cfg.Telemetry.MetricsEnabled && !cfg.Telemetry.TracingEnabled {
		return func() {}, nil
	}

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.MetricsEnabled && cfg.Telemetry.PrometheusAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.Telemetry.PrometheusAddr, telemetry.MetricsHandler()); err != nil {
				slog.Warn("metrics endpoint stopped", "error", err)
			}
		}()
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}, nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

// progressHandler renders apply events as they happen.
func progressHandler(e *events.Event) {
	switch e.Type {
	case events.TypeUnpacking:
		ux.Info("Unpacking bundle")
	case events.TypeSnapshotCreated:
		if d, ok := e.Data.(*events.SnapshotData); ok {
			ux.Info(fmt.Sprintf("Snapshot %s created", d.SnapshotID))
		}
	case events.TypeValidating:
		ux.Info("Validating against workspace")
	case events.TypeFileApplied:
		if d, ok := e.Data.(*events.FileData); ok {
			ux.Info(fmt.Sprintf("[%d/%d] %s %s", d.Index, d.Total, d.Action, d.Path))
		}
	case events.TypeMigrationComplete:
		if d, ok := e.Data.(*events.MigrationData); ok {
			ux.Info(fmt.Sprintf("Migration %s staged", d.MigrationID))
		}
	case events.TypeRollingBack:
		ux.Warning("Rolling back")
	case events.TypeRolledBack:
		ux.Warning("Rolled back, workspace restored")
	case events.TypeRollbackFailed:
		ux.Error("Rollback failed, workspace may be inconsistent")
	case events.TypeComplete:
		ux.Success("Apply complete")
	}
}

func outputApplyText(r *transaction.ApplyResult) {
	fmt.Println()
	ux.Title(fmt.Sprintf("Transaction %s: %s", r.TransactionID, r.State))
	ux.Info(fmt.Sprintf("Files applied: %d, migrations staged: %d, took %s",
		r.FilesApplied, r.MigrationsRun, r.Duration.Round(time.Millisecond)))
	if r.SnapshotID != "" {
		ux.Muted(fmt.Sprintf("Snapshot: %s (restore with 'forgeline snapshot restore %s')",
			r.SnapshotID, r.SnapshotID))
	}
	for _, w := range r.Warnings {
		ux.Warning(w)
	}
	if r.Critical {
		ux.Error("Workspace may be inconsistent; restore the snapshot manually")
	}
	if r.Err != "" && !r.Succeeded() {
		fmt.Fprintf(os.Stderr, "Error: %s\n", r.Err)
	}
}
