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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeys(t *testing.T) *KeyStore {
	t.Helper()
	keys, err := LoadOrCreate(t.TempDir(), "test-key")
	require.NoError(t, err)
	return keys
}

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"b":2,"a":1,"nested":{"z":true,"y":false}}`)
	b := json.RawMessage(`{"a":1,"nested":{"y":false,"z":true},"b":2}`)

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
}

func TestCanonicalize_ArrayOrderPreserved(t *testing.T) {
	a := json.RawMessage(`{"items":[3,1,2]}`)
	b := json.RawMessage(`{"items":[1,2,3]}`)

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.NotEqual(t, ca, cb)
}

func TestCanonicalize_Deterministic(t *testing.T) {
	doc := map[string]any{"x": 1, "y": []string{"a", "b"}, "z": map[string]any{"k": "v"}}

	first, err := Canonicalize(doc)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Canonicalize(doc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	keys := newTestKeys(t)
	signer := NewSigner(keys)
	verifier := NewVerifier(keys.PublicKey())

	doc := map[string]any{"id": "b1", "files": []string{"a.go", "b.go"}}

	sig, err := signer.Sign(doc)
	require.NoError(t, err)
	assert.Equal(t, Algorithm, sig.Algorithm)
	assert.Equal(t, "test-key", sig.KeyID)
	assert.NotEmpty(t, sig.Value)

	verdict, err := verifier.Verify(doc, sig)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Reason)
}

func TestVerify_MutatedDocumentRejected(t *testing.T) {
	keys := newTestKeys(t)
	signer := NewSigner(keys)
	verifier := NewVerifier(keys.PublicKey())

	doc := map[string]any{"id": "b1", "value": 1}
	sig, err := signer.Sign(doc)
	require.NoError(t, err)

	doc["value"] = 2
	verdict, err := verifier.Verify(doc, sig)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.NotEmpty(t, verdict.Reason)
}

func TestVerify_MissingSignatureRejectedNotError(t *testing.T) {
	keys := newTestKeys(t)
	verifier := NewVerifier(keys.PublicKey())

	verdict, err := verifier.Verify(map[string]any{"id": "b1"}, nil)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, "no signature present", verdict.Reason)
}

func TestVerify_ForeignAlgorithmRejected(t *testing.T) {
	keys := newTestKeys(t)
	verifier := NewVerifier(keys.PublicKey())

	verdict, err := verifier.Verify(map[string]any{"id": "b1"}, &Signature{
		Algorithm: "rsa-pkcs1v15-sha256",
		Value:     "AAAA",
	})
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Reason, "unsupported algorithm")
}

func TestVerify_GarbageValueRejected(t *testing.T) {
	keys := newTestKeys(t)
	verifier := NewVerifier(keys.PublicKey())

	verdict, err := verifier.Verify(map[string]any{"id": "b1"}, &Signature{
		Algorithm: Algorithm,
		Value:     "not base64 %%%",
	})
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
}

func TestVerifyFresh_StaleSignatureRejected(t *testing.T) {
	keys := newTestKeys(t)
	signer := NewSigner(keys)
	verifier := NewVerifier(keys.PublicKey())

	doc := map[string]any{"id": "b1"}
	sig, err := signer.Sign(doc)
	require.NoError(t, err)

	// Fresh signature passes.
	verdict, err := verifier.VerifyFresh(doc, sig, DefaultMaxAge)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)

	// Aged beyond the window: rejected by policy, crypto untouched.
	sig.SignedAt = time.Now().Add(-8 * 24 * time.Hour)
	verdict, err = verifier.VerifyFresh(doc, sig, DefaultMaxAge)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Reason, "freshness")
}

func TestKeyStore_PersistsAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "persist")
	require.NoError(t, err)
	second, err := LoadOrCreate(dir, "persist")
	require.NoError(t, err)

	// Same key pair on reload.
	assert.Equal(t, first.PublicKey().N, second.PublicKey().N)

	// Public key loadable standalone for verify-only consumers.
	pub, err := LoadPublicKey(dir, "persist")
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey().N, pub.N)
}

func TestKeyStore_EmptyKeyIDRejected(t *testing.T) {
	_, err := LoadOrCreate(t.TempDir(), "")
	assert.Error(t, err)
}
