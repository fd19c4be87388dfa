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
	"fmt"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the workspace",
	Long: `Create the .forgeline directory with a default config file and a
signing key pair. Safe to run repeatedly; existing files are kept.`,
	RunE: runInitCommand,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInitCommand(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath(workspaceDir)
	loaded, err := config.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cfg = loaded
	ux.Success(fmt.Sprintf("Config ready at %s", path))

	keys, err := loadKeys()
	if err != nil {
		return fmt.Errorf("create keys: %w", err)
	}
	ux.Success(fmt.Sprintf("Signing key %q ready", keys.KeyID()))
	return nil
}
