// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// SigningKey returns a deterministic Ed25519 key pair for label.
func SigningKey(t testing.TB, label string) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	seed := sha256.Sum256([]byte("testutil signing key: " + label))
	private := ed25519.NewKeyFromSeed(seed[:])
	return private.Public().(ed25519.PublicKey), private
}

// SymmetricKey returns a deterministic 32-byte key for label. The
// buffer is closed during test cleanup.
func SymmetricKey(t testing.TB, label string) *secret.Buffer {
	t.Helper()
	material := sha256.Sum256([]byte("testutil symmetric key: " + label))
	buffer, err := secret.NewFromBytes(material[:])
	if err != nil {
		t.Fatalf("creating symmetric key %q: %v", label, err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}
