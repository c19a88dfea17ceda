// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

const softwareName = "software"

// Key file names inside a software backend directory.
const (
	PrivateKeyFile   = "device.key"
	PublicKeyFile    = "device.pub"
	MasterSecretFile = "master.age"
)

// Software is the file-backed backend.
type Software struct {
	directory string
	logger    *slog.Logger

	mu         sync.Mutex
	passphrase *secret.Buffer
	master     *secret.Buffer
	signer     ed25519.PrivateKey
}

// GenerateSoftware creates a device key pair and a sealed master
// secret in options.Directory. It refuses to overwrite existing keys.
// A nil passphrase skips the master secret: the directory can then
// sign but not seal.
func GenerateSoftware(options Options) (*Software, error) {
	if options.Directory == "" {
		return nil, errors.New("keys: software backend needs a directory")
	}
	if err := os.MkdirAll(options.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	for _, name := range []string{PrivateKeyFile, PublicKeyFile, MasterSecretFile} {
		if _, err := os.Stat(filepath.Join(options.Directory, name)); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, filepath.Join(options.Directory, name))
		}
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}
	if err := writeKeyFile(options.Directory, PrivateKeyFile, []byte(manifest.FormatPrivateKey(privateKey)+"\n"), 0o600); err != nil {
		return nil, err
	}
	if err := writeKeyFile(options.Directory, PublicKeyFile, []byte(manifest.FormatPublicKey(publicKey)+"\n"), 0o644); err != nil {
		return nil, err
	}

	if options.Passphrase != nil {
		master, err := randomSecret()
		if err != nil {
			return nil, err
		}
		defer master.Close()
		sealed, err := sealMaster(master, options.Passphrase, options.ScryptWorkFactor)
		if err != nil {
			return nil, err
		}
		if err := writeKeyFile(options.Directory, MasterSecretFile, sealed, 0o600); err != nil {
			return nil, err
		}
	}

	options.logger().Info("generated software keys",
		"directory", options.Directory,
		"public_key", manifest.FormatPublicKey(publicKey),
		"master_secret", options.Passphrase != nil,
	)
	return OpenSoftware(options)
}

// OpenSoftware opens an existing key directory. Missing files are not
// an error here; operations that need them fail when called.
func OpenSoftware(options Options) (*Software, error) {
	if options.Directory == "" {
		return nil, errors.New("keys: software backend needs a directory")
	}
	backend := &Software{directory: options.Directory, logger: options.logger()}
	if options.Passphrase != nil {
		clone, err := options.Passphrase.Clone()
		if err != nil {
			return nil, fmt.Errorf("copying passphrase: %w", err)
		}
		backend.passphrase = clone
	}
	return backend, nil
}

// Name implements Backend.
func (s *Software) Name() string { return softwareName }

// Directory returns the key directory.
func (s *Software) Directory() string { return s.directory }

// Capabilities implements Backend.
func (s *Software) Capabilities() Capabilities {
	return Capabilities{
		Sign:       fileExists(filepath.Join(s.directory, PrivateKeyFile)),
		Derive:     s.passphrase != nil && fileExists(filepath.Join(s.directory, MasterSecretFile)),
		Persistent: true,
	}
}

// SigningKey implements Provider. Only DeviceKey exists.
func (s *Software) SigningKey(keyID string) (crypto.Signer, error) {
	if keyID != "" && keyID != DeviceKey {
		return nil, fmt.Errorf("%w: %q", ErrNoSigningKey, keyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signer != nil {
		return s.signer, nil
	}

	data, err := os.ReadFile(filepath.Join(s.directory, PrivateKeyFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, filepath.Join(s.directory, PrivateKeyFile))
		}
		return nil, fmt.Errorf("reading device key: %w", err)
	}
	defer secret.Zero(data)
	privateKey, err := manifest.ParsePrivateKey(string(data))
	if err != nil {
		return nil, err
	}
	s.signer = privateKey
	return privateKey, nil
}

// VerifyingKey implements Provider. "" and DeviceKey name this
// directory's device.pub.
func (s *Software) VerifyingKey(identifier string) (ed25519.PublicKey, error) {
	if identifier == "" || identifier == DeviceKey {
		identifier = filepath.Join(s.directory, PublicKeyFile)
	}
	return ResolveVerifyingKey(identifier)
}

// SymmetricKey implements Provider.
func (s *Software) SymmetricKey(keyID format.KeyID) (*secret.Buffer, error) {
	return s.DeriveKey(ContainerKeyInfo(keyID))
}

// DeriveKey implements Backend.
func (s *Software) DeriveKey(info []byte) (*secret.Buffer, error) {
	master, err := s.loadMaster()
	if err != nil {
		return nil, err
	}
	return deriveKey(master, info)
}

func (s *Software) loadMaster() (*secret.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master != nil {
		return s.master, nil
	}
	if s.passphrase == nil {
		return nil, fmt.Errorf("%w: no passphrase supplied", ErrNoMasterSecret)
	}

	path := filepath.Join(s.directory, MasterSecretFile)
	sealed, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoMasterSecret, path)
		}
		return nil, fmt.Errorf("reading master secret: %w", err)
	}
	master, err := unsealMaster(sealed, s.passphrase)
	if err != nil {
		return nil, err
	}
	s.master = master
	s.logger.Debug("unsealed master secret", "directory", s.directory)
	return master, nil
}

// Close releases the passphrase and master secret.
func (s *Software) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master != nil {
		s.master.Close()
		s.master = nil
	}
	if s.passphrase != nil {
		s.passphrase.Close()
		s.passphrase = nil
	}
	s.signer = nil
	return nil
}

// ResolveVerifyingKey accepts the "ed25519:<base64>" text form or a
// path to a file containing it.
func ResolveVerifyingKey(identifier string) (ed25519.PublicKey, error) {
	if strings.HasPrefix(identifier, "ed25519:") {
		return manifest.ParsePublicKey(identifier)
	}
	data, err := os.ReadFile(identifier)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, identifier)
		}
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return manifest.ParsePublicKey(string(data))
}

func writeKeyFile(directory, name string, data []byte, mode os.FileMode) error {
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func randomSecret() (*secret.Buffer, error) {
	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generating master secret: %w", err)
	}
	return secret.NewFromBytes(material)
}
