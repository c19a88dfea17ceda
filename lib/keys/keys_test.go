// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// testWorkFactor keeps scrypt fast in tests.
const testWorkFactor = 10

func passphrase(t *testing.T, text string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(text))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func generate(t *testing.T) (string, *Software) {
	t.Helper()
	directory := filepath.Join(t.TempDir(), "keys")
	backend, err := GenerateSoftware(Options{
		Directory:        directory,
		Passphrase:       passphrase(t, "correct horse"),
		ScryptWorkFactor: testWorkFactor,
	})
	if err != nil {
		t.Fatalf("GenerateSoftware: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return directory, backend
}

func TestRegistry(t *testing.T) {
	names := Names()
	if len(names) != 2 || names[0] != "memory" || names[1] != "software" {
		t.Errorf("Names() = %v, want [memory software]", names)
	}

	if _, err := Open("pkcs11", Options{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(pkcs11) error = %v, want ErrUnknownBackend", err)
	}

	backend, err := Open("memory", Options{})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	defer backend.Close()
	if backend.Name() != "memory" {
		t.Errorf("Name() = %q", backend.Name())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	Register("memory", nil)
}

func TestGenerateSoftwareWritesKeyFiles(t *testing.T) {
	directory, backend := generate(t)

	for _, name := range []string{PrivateKeyFile, PublicKeyFile, MasterSecretFile} {
		info, err := os.Stat(filepath.Join(directory, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if name != PublicKeyFile && info.Mode().Perm() != 0o600 {
			t.Errorf("%s mode = %v, want 0600", name, info.Mode().Perm())
		}
	}

	capabilities := backend.Capabilities()
	if !capabilities.Sign || !capabilities.Derive || !capabilities.Persistent {
		t.Errorf("Capabilities() = %+v, want all true", capabilities)
	}

	if _, err := GenerateSoftware(Options{Directory: directory}); !errors.Is(err, ErrExists) {
		t.Errorf("second GenerateSoftware error = %v, want ErrExists", err)
	}
}

func TestSoftwareSignAndVerify(t *testing.T) {
	directory, backend := generate(t)

	signer, err := backend.SigningKey("")
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	signature, err := manifest.Sign(signer, manifest.StreamDomain, []byte("data"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// A verifier with only the public key file.
	publicKey, err := ResolveVerifyingKey(filepath.Join(directory, PublicKeyFile))
	if err != nil {
		t.Fatalf("ResolveVerifyingKey: %v", err)
	}
	if err := manifest.Verify(publicKey, manifest.StreamDomain, []byte("data"), signature); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	fromBackend, err := backend.VerifyingKey(DeviceKey)
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	if !fromBackend.Equal(publicKey) {
		t.Error("backend verifying key differs from device.pub")
	}

	if _, err := backend.SigningKey("other"); !errors.Is(err, ErrNoSigningKey) {
		t.Errorf("SigningKey(other) error = %v, want ErrNoSigningKey", err)
	}
}

func TestSoftwareSymmetricKeyIsStable(t *testing.T) {
	directory, backend := generate(t)
	keyID := format.NewKeyID()

	first, err := backend.SymmetricKey(keyID)
	if err != nil {
		t.Fatalf("SymmetricKey: %v", err)
	}
	defer first.Close()
	if first.Len() != KeySize {
		t.Errorf("key length = %d, want %d", first.Len(), KeySize)
	}

	// Reopen from disk with the same passphrase.
	reopened, err := Open("software", Options{Directory: directory, Passphrase: passphrase(t, "correct horse")})
	if err != nil {
		t.Fatalf("Open(software): %v", err)
	}
	defer reopened.Close()
	second, err := reopened.SymmetricKey(keyID)
	if err != nil {
		t.Fatalf("SymmetricKey after reopen: %v", err)
	}
	defer second.Close()
	if !first.Equal(second) {
		t.Error("same key id derived different keys across reopen")
	}

	other, err := backend.SymmetricKey(format.NewKeyID())
	if err != nil {
		t.Fatalf("SymmetricKey: %v", err)
	}
	defer other.Close()
	if first.Equal(other) {
		t.Error("different key ids derived the same key")
	}
}

func TestSoftwareWrongPassphrase(t *testing.T) {
	directory, _ := generate(t)

	backend, err := OpenSoftware(Options{Directory: directory, Passphrase: passphrase(t, "wrong")})
	if err != nil {
		t.Fatalf("OpenSoftware: %v", err)
	}
	defer backend.Close()
	if _, err := backend.SymmetricKey(format.NewKeyID()); err == nil {
		t.Fatal("SymmetricKey succeeded with wrong passphrase")
	}
}

func TestSoftwareWithoutPassphrase(t *testing.T) {
	directory, _ := generate(t)

	backend, err := OpenSoftware(Options{Directory: directory})
	if err != nil {
		t.Fatalf("OpenSoftware: %v", err)
	}
	defer backend.Close()
	if backend.Capabilities().Derive {
		t.Error("Derive capability reported without passphrase")
	}
	if _, err := backend.SymmetricKey(format.NewKeyID()); !errors.Is(err, ErrNoMasterSecret) {
		t.Errorf("SymmetricKey error = %v, want ErrNoMasterSecret", err)
	}
}

func TestResolveVerifyingKey(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	text := manifest.FormatPublicKey(publicKey)

	fromText, err := ResolveVerifyingKey(text)
	if err != nil {
		t.Fatalf("ResolveVerifyingKey(text): %v", err)
	}
	if !fromText.Equal(publicKey) {
		t.Error("text form resolved to a different key")
	}

	if _, err := ResolveVerifyingKey(filepath.Join(t.TempDir(), "absent.pub")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("missing file error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	backend, err := NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer backend.Close()

	signer, err := backend.SigningKey("")
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	publicKey, err := backend.VerifyingKey("")
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	if !publicKey.Equal(signer.Public()) {
		t.Error("verifying key does not match signer")
	}

	keyID := format.NewKeyID()
	first, err := backend.SymmetricKey(keyID)
	if err != nil {
		t.Fatalf("SymmetricKey: %v", err)
	}
	defer first.Close()
	second, err := backend.SymmetricKey(keyID)
	if err != nil {
		t.Fatalf("SymmetricKey: %v", err)
	}
	defer second.Close()
	if !first.Equal(second) {
		t.Error("memory backend is not deterministic per key id")
	}

	if _, err := backend.VerifyingKey("nobody"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("VerifyingKey(nobody) error = %v, want ErrKeyNotFound", err)
	}
}
