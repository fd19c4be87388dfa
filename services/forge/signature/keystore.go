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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

// keyBits is the RSA modulus size for generated signing keys.
const keyBits = 2048

// KeyStore loads and persists the signing key pair for one key ID.
//
// # Description
//
// Keys live under a directory as PEM files: <keyID>.pem holds the
// PKCS#8 private key, <keyID>.pub.pem the PKIX public key. The private
// key material is kept in a memguard enclave between uses so it never
// sits in plain process memory longer than a single signing operation.
//
// # Thread Safety
//
// KeyStore is immutable after construction and safe for concurrent use.
type KeyStore struct {
	keyID   string
	dir     string
	private *memguard.Enclave
	public  *rsa.PublicKey
}

// LoadOrCreate opens the key pair for keyID under dir, generating and
// persisting a new pair on first use.
//
// # Inputs
//
//   - dir: Key storage directory. Created if absent (0700).
//   - keyID: Identifier of the key pair. Must be non-empty.
//
// # Outputs
//
//   - *KeyStore: Ready-to-use key store.
//   - error: Non-nil on I/O or key-parse failure.
func LoadOrCreate(dir, keyID string) (*KeyStore, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	privPath := filepath.Join(dir, keyID+".pem")
	if _, err := os.Stat(privPath); os.IsNotExist(err) {
		if err := generate(dir, keyID); err != nil {
			return nil, fmt.Errorf("generating key pair: %w", err)
		}
	}

	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", privPath)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s is not an RSA key", keyID)
	}

	return &KeyStore{
		keyID:   keyID,
		dir:     dir,
		private: memguard.NewEnclave(block.Bytes),
		public:  &rsaKey.PublicKey,
	}, nil
}

// KeyID returns the identifier of the stored key pair.
func (k *KeyStore) KeyID() string {
	return k.keyID
}

// PublicKey returns the verification key.
func (k *KeyStore) PublicKey() *rsa.PublicKey {
	return k.public
}

// withPrivateKey opens the enclave, parses the key, runs fn, and wipes
// the buffer before returning.
func (k *KeyStore) withPrivateKey(fn func(*rsa.PrivateKey) error) error {
	buf, err := k.private.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()

	parsed, err := x509.ParsePKCS8PrivateKey(buf.Bytes())
	if err != nil {
		return fmt.Errorf("parsing enclaved key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("enclaved key is not an RSA key")
	}
	return fn(rsaKey)
}

// generate creates and persists a new key pair.
func generate(dir, keyID string) error {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generating RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(filepath.Join(dir, keyID+".pem"), privPEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(filepath.Join(dir, keyID+".pub.pem"), pubPEM, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// LoadPublicKey reads only the verification key for keyID under dir.
// Consumers that verify but never sign should use this instead of
// LoadOrCreate.
func LoadPublicKey(dir, keyID string) (*rsa.PublicKey, error) {
	pubPEM, err := os.ReadFile(filepath.Join(dir, keyID+".pub.pem"))
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key for %s", keyID)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key for %s is not RSA", keyID)
	}
	return pub, nil
}
