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
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"
)

// Algorithm identifies the single supported signature scheme.
const Algorithm = "rsa-pss-sha256"

// Signature is the detached proof attached to a signed document. It is
// never embedded inside the canonicalized payload it covers.
type Signature struct {
	// Algorithm is the scheme identifier; only rsa-pss-sha256 is
	// produced or accepted.
	Algorithm string `json:"algorithm"`

	// KeyID identifies the signer's key pair.
	KeyID string `json:"key_id"`

	// SignedAt is when the signature was produced.
	SignedAt time.Time `json:"signed_at"`

	// Value is the base64-encoded signature bytes.
	Value string `json:"value"`
}

// Signer produces signatures over canonicalized documents.
//
// # Thread Safety
//
// Signer is safe for concurrent use.
type Signer struct {
	keys   *KeyStore
	logger *slog.Logger
}

// NewSigner creates a signer bound to a key store.
func NewSigner(keys *KeyStore) *Signer {
	return &Signer{
		keys:   keys,
		logger: slog.Default().With("component", "signature.Signer"),
	}
}

// Sign digests the canonical form of doc and signs it.
//
// # Description
//
// The caller must pass the document with any existing signature field
// removed; the digest covers exactly what the verifier will recompute.
//
// # Inputs
//
//   - doc: The unsigned document.
//
// # Outputs
//
//   - *Signature: The detached signature block.
//   - error: Non-nil on canonicalization or signing failure.
func (s *Signer) Sign(doc any) (*Signature, error) {
	digest, err := Digest(doc)
	if err != nil {
		return nil, fmt.Errorf("digesting document: %w", err)
	}

	var sigBytes []byte
	err = s.keys.withPrivateKey(func(key *rsa.PrivateKey) error {
		var signErr error
		sigBytes, signErr = rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest, nil)
		return signErr
	})
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}

	sig := &Signature{
		Algorithm: Algorithm,
		KeyID:     s.keys.KeyID(),
		SignedAt:  time.Now(),
		Value:     base64.StdEncoding.EncodeToString(sigBytes),
	}

	s.logger.Debug("document signed", "key_id", sig.KeyID)
	return sig, nil
}
