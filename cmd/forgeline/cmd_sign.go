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
	"time"

	"github.com/forgeline-ai/forgeline/pkg/ux"
	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	signOutput   string
	verifyMaxAge time.Duration
	verifyJSON   bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var signCmd = &cobra.Command{
	Use:   "sign <bundle.json>",
	Short: "Sign a bundle with the workspace key",
	Long: `Attach a detached RSA-PSS signature to a bundle file.

The key pair lives under the configured key directory and is created on
first use. Signing covers the canonical bundle content, so any later
edit to files, tests, migrations, or commands invalidates the
signature.

Examples:
  forgeline sign bundle.json                 # Sign in place
  forgeline sign bundle.json -o signed.json  # Write to a new file`,
	Args: cobra.ExactArgs(1),
	RunE: runSignCommand,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle.json>",
	Short: "Verify a bundle signature",
	Long: `Verify the detached signature on a bundle file.

Verification recomputes the canonical content digest and checks it
against the signature using the workspace public key. With --max-age,
signatures older than the window are rejected even when
cryptographically valid.

Examples:
  forgeline verify bundle.json
  forgeline verify bundle.json --max-age 24h
  forgeline verify bundle.json --json

Exit Codes:
  0 = Signature valid
  1 = Signature missing, invalid, or stale`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyCommand,
}

func init() {
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "",
		"Write the signed bundle here instead of in place")
	verifyCmd.Flags().DurationVar(&verifyMaxAge, "max-age", 0,
		"Reject signatures older than this (0 disables the check)")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false,
		"Output the verdict as JSON")

	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runSignCommand(cmd *cobra.Command, args []string) error {
	b, err := readBundleFile(args[0])
	if err != nil {
		return err
	}

	keys, err := loadKeys()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	if err := bundle.Sign(b, signature.NewSigner(keys)); err != nil {
		return fmt.Errorf("sign bundle: %w", err)
	}

	out := signOutput
	if out == "" {
		out = args[0]
	}
	if err := writeBundleFile(out, b); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Bundle %s signed with key %s", b.ID, b.Signature.KeyID))
	return nil
}

func runVerifyCommand(cmd *cobra.Command, args []string) error {
	b, err := readBundleFile(args[0])
	if err != nil {
		return err
	}

	keys, err := loadKeys()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	verifier := signature.NewVerifier(keys.PublicKey())

	var verdict signature.Verdict
	if verifyMaxAge > 0 {
		verdict, err = bundle.VerifyFresh(b, verifier, verifyMaxAge)
	} else {
		verdict, err = bundle.Verify(b, verifier)
	}
	if err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}

	if verifyJSON {
		if err := outputJSON(verdict); err != nil {
			return err
		}
	} else if verdict.Valid {
		ux.Success(fmt.Sprintf("Bundle %s signature is valid", b.ID))
	} else {
		ux.Error(fmt.Sprintf("Bundle %s signature rejected: %s", b.ID, verdict.Reason))
	}

	if !verdict.Valid {
		return fmt.Errorf("signature invalid: %s", verdict.Reason)
	}
	return nil
}
