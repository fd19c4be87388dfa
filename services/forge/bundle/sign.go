// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"fmt"
	"time"

	"github.com/forgeline-ai/forgeline/services/forge/signature"
)

// Sign attaches a detached signature to the bundle.
//
// # Description
//
// The digest covers the canonical form of the bundle with the
// signature field removed; no other field is altered by signing.
//
// # Inputs
//
//   - b: The compiled bundle. Must not be nil.
//   - signer: The signer holding the private key.
//
// # Outputs
//
//   - error: Non-nil on signing failure; the bundle is left unsigned.
func Sign(b *Bundle, signer *signature.Signer) error {
	if b == nil {
		return fmt.Errorf("bundle must not be nil")
	}

	unsigned := *b
	unsigned.Signature = nil

	sig, err := signer.Sign(&unsigned)
	if err != nil {
		return fmt.Errorf("signing bundle %s: %w", b.ID, err)
	}

	b.Signature = sig
	return nil
}

// Verify checks the bundle's signature.
//
// A bundle without a signature, with an unsupported algorithm, or with
// a non-matching signature value yields a false verdict, never an
// error; errors are reserved for malformed input.
func Verify(b *Bundle, verifier *signature.Verifier) (signature.Verdict, error) {
	if b == nil {
		return signature.Verdict{}, fmt.Errorf("bundle must not be nil")
	}

	unsigned := *b
	unsigned.Signature = nil

	return verifier.Verify(&unsigned, b.Signature)
}

// VerifyFresh checks the signature and its age in one call.
func VerifyFresh(b *Bundle, verifier *signature.Verifier, maxAge time.Duration) (signature.Verdict, error) {
	if b == nil {
		return signature.Verdict{}, fmt.Errorf("bundle must not be nil")
	}

	unsigned := *b
	unsigned.Signature = nil

	return verifier.VerifyFresh(&unsigned, b.Signature, maxAge)
}
