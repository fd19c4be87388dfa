// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signature

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultMaxAge is the freshness window applied by VerifyFresh.
const DefaultMaxAge = 7 * 24 * time.Hour

// Verdict explains a verification outcome.
type Verdict struct {
	// Valid is the verification result.
	Valid bool `json:"valid"`

	// Reason explains a false result; empty when valid.
	Reason string `json:"reason,omitempty"`
}

// Verifier validates detached signatures against a public key.
//
// # Description
//
// Verification never returns an error for a merely-invalid signature;
// a missing, foreign-algorithm, or cryptographically wrong signature
// yields a false verdict with a reason. Errors are reserved for
// malformed input the verifier cannot even canonicalize.
//
// Signature freshness is a separate policy: Verify ignores age,
// VerifyFresh additionally rejects signatures older than a window.
//
// # Thread Safety
//
// Verifier is safe for concurrent use.
type Verifier struct {
	public *rsa.PublicKey
}

// NewVerifier creates a verifier for the given public key.
func NewVerifier(public *rsa.PublicKey) *Verifier {
	return &Verifier{public: public}
}

// Verify checks the signature over the canonical form of doc.
//
// # Inputs
//
//   - doc: The document with its signature field removed.
//   - sig: The detached signature. Nil is a rejection, not an error.
//
// # Outputs
//
//   - Verdict: Valid plus a structured reason on rejection.
//   - error: Non-nil only for malformed input.
func (v *Verifier) Verify(doc any, sig *Signature) (Verdict, error) {
	if sig == nil {
		return Verdict{Valid: false, Reason: "no signature present"}, nil
	}
	if sig.Algorithm != Algorithm {
		return Verdict{Valid: false,
			Reason: fmt.Sprintf("unsupported algorithm %q", sig.Algorithm)}, nil
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return Verdict{Valid: false, Reason: "signature value is not valid base64"}, nil
	}

	digest, err := Digest(doc)
	if err != nil {
		return Verdict{}, fmt.Errorf("digesting document: %w", err)
	}

	if err := rsa.VerifyPSS(v.public, crypto.SHA256, digest, sigBytes, nil); err != nil {
		return Verdict{Valid: false, Reason: "signature does not match document"}, nil
	}

	return Verdict{Valid: true}, nil
}

// VerifyFresh verifies the signature and additionally rejects
// signatures older than maxAge. Pass DefaultMaxAge for the standard
// seven-day window.
func (v *Verifier) VerifyFresh(doc any, sig *Signature, maxAge time.Duration) (Verdict, error) {
	verdict, err := v.Verify(doc, sig)
	if err != nil || !verdict.Valid {
		return verdict, err
	}
	if age := time.Since(sig.SignedAt); age > maxAge {
		return Verdict{Valid: false,
			Reason: fmt.Sprintf("signature is %s old, freshness window is %s", age.Round(time.Second), maxAge)}, nil
	}
	return verdict, nil
}
