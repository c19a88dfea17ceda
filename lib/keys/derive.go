// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// KeySize is the size of master secrets and derived keys.
const KeySize = 32

// HKDF info prefix for container keys. Changing it invalidates every
// container ever sealed.
var hkdfInfoContainer = []byte("trustedge.container.key.v1")

// ContainerKeyInfo returns the HKDF info for container keyID.
func ContainerKeyInfo(keyID format.KeyID) []byte {
	info := make([]byte, len(hkdfInfoContainer)+len(keyID))
	copy(info, hkdfInfoContainer)
	copy(info[len(hkdfInfoContainer):], keyID[:])
	return info
}

// deriveKey runs HKDF-SHA256 over master with info and returns a
// KeySize key. The master is borrowed and NOT closed.
func deriveKey(master *secret.Buffer, info []byte) (*secret.Buffer, error) {
	reader := hkdf.New(sha256.New, master.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation: %w", err)
	}
	return secret.NewFromBytes(derived)
}
