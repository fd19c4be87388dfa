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
	"log/slog"
	"os"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/config"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

var (
	cfg          *config.Config
	workspaceDir string

	flagWorkspace string
	flagConfig    string
	flagVerbose   bool
	flagPlain     bool
)

var rootCmd = &cobra.Command{
	Use:   "forgeline",
	Short: "Plan, score, bundle, sign, and apply generated code changes",
	Long: `Forgeline turns machine-generated change descriptions into
safely-deployable signed bundles.

The pipeline runs in five stages:
  plan    Schedule feature specs into an ordered step plan
  risk    Score a plan and gate automatic application
  bundle  Compile generated sources into a validated bundle
  sign    Attach and verify detached bundle signatures
  apply   Apply a bundle to a workspace transactionally`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "",
		"Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Config file path (default: <workspace>/.forgeline/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagPlain, "plain", false,
		"Disable styled terminal output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagPlain {
			ux.SetPlain(true)
		}

		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))

		workspaceDir = flagWorkspace
		if workspaceDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			workspaceDir = wd
		}

		configPath := flagConfig
		if configPath == "" {
			configPath = config.DefaultPath(workspaceDir)
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	}
}
