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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	bundleCompileInput  string
	bundleCompileOutput string
	bundleJSON          bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Compile, validate, and store change bundles",
}

var bundleCompileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile generated sources into a bundle",
	Long: `Compile a set of generated source files into a validated bundle.

The input file is JSON:

  {
    "plan_id": "plan-123",
    "files": [
      {"path": "api/invoice.go", "content": "...", "action": "create"}
    ],
    "tests": [
      {"path": "api/invoice_test.go", "content": "...", "source_file": "api/invoice.go"}
    ],
    "migrations": [
      {"id": "001_invoices", "type": "create_table", "forward": "CREATE ..."}
    ]
  }

Files are ordered create-before-modify-before-delete, checksummed, and
the bundle type is classified from the action counts.

Examples:
  forgeline bundle compile -i sources.json -o bundle.json
  forgeline bundle compile -i sources.json --json`,
	RunE: runBundleCompile,
}

var bundleValidateCmd = &cobra.Command{
	Use:   "validate <bundle.json>",
	Short: "Structurally validate a bundle file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleValidate,
}

var bundleStoreCmd = &cobra.Command{
	Use:   "store <bundle.json>",
	Short: "Save a bundle in the workspace bundle database",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleStore,
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bundles, newest first",
	RunE:  runBundleList,
}

var bundleShowCmd = &cobra.Command{
	Use:   "show <bundle-id>",
	Short: "Print a stored bundle as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleShow,
}

var bundleDeleteCmd = &cobra.Command{
	Use:   "delete <bundle-id>",
	Short: "Remove a bundle from the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleDelete,
}

func init() {
	bundleCompileCmd.Flags().StringVarP(&bundleCompileInput, "input", "i", "",
		"Compile request file (JSON)")
	bundleCompileCmd.Flags().StringVarP(&bundleCompileOutput, "output", "o", "",
		"Write the bundle JSON to this file")
	bundleCompileCmd.Flags().BoolVar(&bundleJSON, "json", false,
		"Output the full bundle as JSON")
	bundleCompileCmd.MarkFlagRequired("input")

	bundleCmd.AddCommand(bundleCompileCmd)
	bundleCmd.AddCommand(bundleValidateCmd)
	bundleCmd.AddCommand(bundleStoreCmd)
	bundleCmd.AddCommand(bundleListCmd)
	bundleCmd.AddCommand(bundleShowCmd)
	bundleCmd.AddCommand(bundleDeleteCmd)
	rootCmd.AddCommand(bundleCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// compileRequest is the on-disk compile input format.
type compileRequest struct {
	PlanID           string           `json:"plan_id,omitempty"`
	TokensUsed       int              `json:"tokens_used,omitempty"`
	GenerationTimeMs int64            `json:"generation_time_ms,omitempty"`
	Files            []compileFile    `json:"files"`
	Tests            []compileTest    `json:"tests,omitempty"`
	Migrations       []plan.Migration `json:"migrations,omitempty"`
}

type compileFile struct {
	Path        string      `json:"path"`
	Content     string      `json:"content"`
	Action      plan.Action `json:"action"`
	Layer       plan.Layer  `json:"layer,omitempty"`
	Description string      `json:"description,omitempty"`
	Baseline    string      `json:"baseline,omitempty"`
}

type compileTest struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	SourceFile string `json:"source_file,omitempty"`
}

func (r *compileRequest) toInput() bundle.CompileInput {
	in := bundle.CompileInput{
		Migrations:     r.Migrations,
		PlanID:         r.PlanID,
		TokensUsed:     r.TokensUsed,
		GenerationTime: time.Duration(r.GenerationTimeMs) * time.Millisecond,
	}
	for _, f := range r.Files {
		in.Files = append(in.Files, bundle.SourceFile{
			Path:        f.Path,
			Content:     f.Content,
			Action:      f.Action,
			Layer:       f.Layer,
			Description: f.Description,
			Baseline:    f.Baseline,
		})
	}
	for _, t := range r.Tests {
		in.Tests = append(in.Tests, bundle.SourceTest{
			Path:       t.Path,
			Content:    t.Content,
			SourceFile: t.SourceFile,
		})
	}
	return in
}

func runBundleCompile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(bundleCompileInput)
	if err != nil {
		return fmt.Errorf("read compile request: %w", err)
	}

	var req compileRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse compile request: %w", err)
	}

	b, err := bundle.NewCompiler().Compile(req.toInput())
	if err != nil {
		return fmt.Errorf("compile bundle: %w", err)
	}

	if bundleCompileOutput != "" {
		if err := writeBundleFile(bundleCompileOutput, b); err != nil {
			return err
		}
		ux.Success(fmt.Sprintf("Bundle %s (%s) written to %s", b.ID, b.Type, bundleCompileOutput))
		return nil
	}
	if bundleJSON {
		return outputJSON(b)
	}
	outputBundleText(b)
	return nil
}

func runBundleValidate(cmd *cobra.Command, args []string) error {
	b, err := readBundleFile(args[0])
	if err != nil {
		return err
	}

	result := bundle.Validate(b)
	for _, w := range result.Warnings {
		ux.Warning(w)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			ux.Error(e)
		}
		return fmt.Errorf("bundle %s is invalid (%d errors)", b.ID, len(result.Errors))
	}
	ux.Success(fmt.Sprintf("Bundle %s is valid", b.ID))
	return nil
}

func runBundleStore(cmd *cobra.Command, args []string) error {
	b, err := readBundleFile(args[0])
	if err != nil {
		return err
	}

	st, err := openBundleStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Put(context.Background(), b); err != nil {
		return fmt.Errorf("store bundle: %w", err)
	}
	ux.Success(fmt.Sprintf("Bundle %s stored", b.ID))
	return nil
}

func runBundleList(cmd *cobra.Command, args []string) error {
	st, err := openBundleStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bundles, err := st.List(context.Background())
	if err != nil {
		return fmt.Errorf("list bundles: %w", err)
	}
	if len(bundles) == 0 {
		ux.Muted("No bundles stored.")
		return nil
	}

	for _, b := range bundles {
		signed := " "
		if b.Signature != nil {
			signed = "S"
		}
		fmt.Printf("%s  %-8s %s  %df/%dt/%dm [%s]\n",
			b.CreatedAt.Format(time.RFC3339), b.Type, b.ID,
			len(b.Files), len(b.Tests), len(b.Migrations), signed)
	}
	return nil
}

func runBundleShow(cmd *cobra.Command, args []string) error {
	st, err := openBundleStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	b, err := st.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}
	return outputJSON(b)
}

func runBundleDelete(cmd *cobra.Command, args []string) error {
	st, err := openBundleStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("delete bundle: %w", err)
	}
	ux.Success(fmt.Sprintf("Bundle %s deleted", args[0]))
	return nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputBundleText(b *bundle.Bundle) {
	ux.Title(fmt.Sprintf("Bundle %s (%s)", b.ID, b.Type))
	ux.Info(fmt.Sprintf("Created: %s", b.CreatedAt.Format(time.RFC3339)))
	ux.Info(fmt.Sprintf("Files: %d created, %d modified, %d deleted",
		b.Metadata.Created, b.Metadata.Modified, b.Metadata.Deleted))
	ux.Info(fmt.Sprintf("Tests: %d, Migrations: %d, Commands: %d",
		len(b.Tests), len(b.Migrations), len(b.Commands)))
	if b.Metadata.PlanID != "" {
		ux.Muted(fmt.Sprintf("Plan: %s", b.Metadata.PlanID))
	}
	if b.Signature != nil {
		ux.Success(fmt.Sprintf("Signed with key %s", b.Signature.KeyID))
	} else {
		ux.Muted("Unsigned")
	}
}
