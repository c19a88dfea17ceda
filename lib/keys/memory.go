// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

const memoryName = "memory"

// Memory is an in-process backend. Keys vanish with the process.
type Memory struct {
	mu      sync.RWMutex
	signers map[string]ed25519.PrivateKey
	master  *secret.Buffer
}

// NewMemory returns a Memory backend with a fresh device key and
// master secret.
func NewMemory() (*Memory, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}
	master, err := randomSecret()
	if err != nil {
		return nil, err
	}
	return &Memory{
		signers: map[string]ed25519.PrivateKey{DeviceKey: privateKey},
		master:  master,
	}, nil
}

// NewMemoryFromKeys builds a Memory backend around existing keys. The
// master is borrowed and copied.
func NewMemoryFromKeys(device ed25519.PrivateKey, master *secret.Buffer) (*Memory, error) {
	clone, err := master.Clone()
	if err != nil {
		return nil, err
	}
	return &Memory{
		signers: map[string]ed25519.PrivateKey{DeviceKey: device},
		master:  clone,
	}, nil
}

// AddSigner registers an additional named signing key.
func (m *Memory) AddSigner(keyID string, privateKey ed25519.PrivateKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signers[keyID] = privateKey
}

// Name implements Backend.
func (m *Memory) Name() string { return memoryName }

// Capabilities implements Backend.
func (m *Memory) Capabilities() Capabilities {
	return Capabilities{Sign: true, Derive: true}
}

// SigningKey implements Provider.
func (m *Memory) SigningKey(keyID string) (crypto.Signer, error) {
	if keyID == "" {
		keyID = DeviceKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	signer, ok := m.signers[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSigningKey, keyID)
	}
	return signer, nil
}

// VerifyingKey implements Provider. identifier is a registered key
// name or the key text form.
func (m *Memory) VerifyingKey(identifier string) (ed25519.PublicKey, error) {
	if strings.HasPrefix(identifier, "ed25519:") {
		return ResolveVerifyingKey(identifier)
	}
	if identifier == "" {
		identifier = DeviceKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	signer, ok := m.signers[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, identifier)
	}
	return signer.Public().(ed25519.PublicKey), nil
}

// SymmetricKey implements Provider.
func (m *Memory) SymmetricKey(keyID format.KeyID) (*secret.Buffer, error) {
	return m.DeriveKey(ContainerKeyInfo(keyID))
}

// DeriveKey implements Backend.
func (m *Memory) DeriveKey(info []byte) (*secret.Buffer, error) {
	return deriveKey(m.master, info)
}

// Close releases the master secret.
func (m *Memory) Close() error {
	return m.master.Close()
}
