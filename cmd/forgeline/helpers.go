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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
	"github.com/forgeline-ai/forgeline/services/forge/store"
	"github.com/forgeline-ai/forgeline/services/forge/transaction"
)

// outputJSON pretty-prints v to stdout.
func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// readBundleFile loads and decodes a bundle from a JSON file.
func readBundleFile(path string) (*bundle.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b bundle.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}

// writeBundleFile encodes a bundle to a JSON file.
func writeBundleFile(path string, b *bundle.Bundle) error {
	encoded, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// openBundleStore opens the workspace bundle database.
func openBundleStore() (*store.Store, error) {
	path := cfg.Store.Path
	if path == "" {
		path = filepath.Join(workspaceDir, transaction.ToolDirName, "bundles")
	}
	return store.Open(store.DefaultConfig(path))
}

// loadKeys opens the signing key pair, creating it on first use.
func loadKeys() (*signature.KeyStore, error) {
	dir := cfg.Signer.KeyDir
	if dir == "" {
		dir = filepath.Join(workspaceDir, transaction.ToolDirName, "keys")
	}
	return signature.LoadOrCreate(dir, cfg.Signer.KeyID)
}
