// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

var (
	// ErrUnknownBackend is returned by Open for unregistered names.
	ErrUnknownBackend = errors.New("keys: unknown backend")

	// ErrNoSigningKey means the backend holds no device signing key.
	ErrNoSigningKey = errors.New("keys: no signing key")

	// ErrNoMasterSecret means symmetric keys cannot be derived, usually
	// because no passphrase was supplied.
	ErrNoMasterSecret = errors.New("keys: master secret unavailable")

	// ErrKeyNotFound means the named verifying key does not exist.
	ErrKeyNotFound = errors.New("keys: key not found")

	// ErrExists means generation would overwrite existing keys.
	ErrExists = errors.New("keys: keys already exist")
)

// DeviceKey is the default signing key identifier.
const DeviceKey = "device"

// Provider hands key material to core operations.
type Provider interface {
	// SigningKey returns the signer named keyID ("" means DeviceKey).
	SigningKey(keyID string) (crypto.Signer, error)

	// VerifyingKey resolves identifier to an Ed25519 public key.
	// identifier is a key name, a path to a public key file, or the
	// "ed25519:<base64>" text form itself.
	VerifyingKey(identifier string) (ed25519.PublicKey, error)

	// SymmetricKey returns the 32-byte key for container keyID. The
	// caller must Close it.
	SymmetricKey(keyID format.KeyID) (*secret.Buffer, error)
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	// Sign is true when a device signing key is present.
	Sign bool `json:"sign"`

	// Derive is true when the master secret is available.
	Derive bool `json:"derive"`

	// Persistent is true when keys survive the process.
	Persistent bool `json:"persistent"`
}

// Backend is a named Provider created through the registry.
type Backend interface {
	Provider

	// Name returns the registry name.
	Name() string

	// Capabilities reports what the backend can currently do.
	Capabilities() Capabilities

	// DeriveKey derives a 32-byte key from the master secret for an
	// arbitrary context. SymmetricKey is DeriveKey with the container
	// context and key id.
	DeriveKey(info []byte) (*secret.Buffer, error)

	// Close releases cached key material.
	Close() error
}

// Options configures backend creation.
type Options struct {
	// Directory holds persistent key files.
	Directory string

	// Passphrase unseals the master secret. Borrowed; the backend
	// keeps its own copy.
	Passphrase *secret.Buffer

	// ScryptWorkFactor is the log2 scrypt cost used when sealing a new
	// master secret. Zero means the age default.
	ScryptWorkFactor int

	// Logger receives backend events. Nil discards.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Factory creates a backend.
type Factory func(Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available to Open. It panics on a duplicate
// name, which is a programming error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("keys: backend registered twice: " + name)
	}
	registry[name] = factory
}

// Open creates the backend registered as name.
func Open(name string, options Options) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, name, Names())
	}
	return factory(options)
}

// Names returns the registered backend names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(softwareName, func(options Options) (Backend, error) {
		backend, err := OpenSoftware(options)
		if err != nil {
			return nil, err
		}
		return backend, nil
	})
	Register(memoryName, func(Options) (Backend, error) {
		backend, err := NewMemory()
		if err != nil {
			return nil, err
		}
		return backend, nil
	})
}
