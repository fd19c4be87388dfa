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
	"time"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/transaction"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage workspace snapshots",
	Long: `List, create, restore, and delete workspace snapshots.

Snapshots are taken automatically before every apply. Restoring one
overwrites current workspace files with their snapshotted content; it
does not remove files created after the snapshot.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE:  runSnapshotList,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Take a manual snapshot of the workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshotCreate,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore workspace files from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRestore,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot-id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runSnapshotList(cmd *cobra.Command, args []string) error {
	snapshots, err := transaction.NewSnapshotStore(workspaceDir).List()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		ux.Muted("No snapshots.")
		return nil
	}
	for _, s := range snapshots {
		fmt.Printf("%s  %s  %d files, %s  %s\n",
			s.CreatedAt.Format(time.RFC3339), s.ID,
			s.FileCount, formatBytes(s.ArchiveSize), s.Description)
	}
	return nil
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	description := "manual"
	if len(args) == 1 {
		description = args[0]
	}
	snap, err := transaction.NewSnapshotStore(workspaceDir).Create(context.Background(), description)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	ux.Success(fmt.Sprintf("Snapshot %s created (%d files, %s)",
		snap.ID, snap.FileCount, formatBytes(snap.ArchiveSize)))
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	if err := transaction.NewSnapshotStore(workspaceDir).Restore(context.Background(), args[0]); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	ux.Success(fmt.Sprintf("Snapshot %s restored", args[0]))
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	if err := transaction.NewSnapshotStore(workspaceDir).Delete(args[0]); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	ux.Success(fmt.Sprintf("Snapshot %s deleted", args[0]))
	return nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
