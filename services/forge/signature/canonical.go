// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signature signs bundles and verifies their integrity.
//
// Payloads are canonicalized before digesting: every object's keys are
// sorted recursively while array element order is preserved, so
// semantically identical documents always hash identically regardless
// of the key order they were produced with. The single signature
// scheme is RSA-PSS over SHA-256, symmetric between signer and
// verifier.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes a document into its deterministic byte form.
//
// # Description
//
// The document is first marshaled to JSON, decoded into a generic
// value (numbers preserved verbatim via json.Number), and re-marshaled.
// Go's JSON encoder emits map keys in sorted order, which yields the
// recursive key-sort; array order passes through untouched.
//
// # Inputs
//
//   - doc: Any JSON-serializable document.
//
// # Outputs
//
//   - []byte: The canonical byte sequence.
//   - error: Non-nil if the document cannot be serialized.
func Canonicalize(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling document: %w", err)
	}
	return canonical, nil
}

// Digest computes the SHA-256 digest of the canonical form of doc.
func Digest(doc any) ([]byte, error) {
	canonical, err := Canonicalize(doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}
