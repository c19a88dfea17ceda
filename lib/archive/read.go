// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
)

// ErrSignatureDisagreement means the detached signature file and the
// manifest's embedded signature field differ.
var ErrSignatureDisagreement = errors.New("archive: detached and embedded signatures differ")

// Container is a loaded archive: its manifest, decoded header, and
// detached signature. Chunk files are read on demand.
type Container struct {
	Directory string

	// Raw is manifest.json exactly as stored. Signatures are checked
	// against it, not against a re-encoding of Manifest.
	Raw []byte

	Manifest   *manifest.Archive
	Header     format.Header
	HeaderHash digest.Digest

	// DetachedSignature is the trimmed content of SignatureFile.
	DetachedSignature string
}

// Load reads manifest.json and the detached signature from directory.
// A missing or unreadable file returns an error matching os.ErrNotExist
// or the underlying I/O error. A malformed manifest or header returns
// an error matching manifest.ErrInvalid or a format sentinel.
func Load(directory string) (*Container, error) {
	raw, err := os.ReadFile(filepath.Join(directory, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	parsed, err := manifest.ParseArchive(raw)
	if err != nil {
		return nil, err
	}
	header, err := parsed.Header.Decode()
	if err != nil {
		return nil, err
	}
	detached, err := os.ReadFile(filepath.Join(directory, filepath.FromSlash(SignatureFile)))
	if err != nil {
		return nil, fmt.Errorf("reading detached signature: %w", err)
	}
	return &Container{
		Directory:         directory,
		Raw:               raw,
		Manifest:          parsed,
		Header:            header,
		HeaderHash:        header.Hash(),
		DetachedSignature: strings.TrimSpace(string(detached)),
	}, nil
}

// VerifySignature checks the detached signature over the manifest and
// that the embedded signature field agrees with it. Failures wrap
// manifest.ErrSignature.
func (c *Container) VerifySignature(publicKey ed25519.PublicKey) error {
	declared, err := manifest.ParsePublicKey(c.Manifest.Device.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", manifest.ErrSignature, err)
	}
	if !declared.Equal(publicKey) {
		return fmt.Errorf("%w: manifest names a different device key", manifest.ErrSignature)
	}
	if err := manifest.VerifyArchive(c.Raw, publicKey, c.DetachedSignature); err != nil {
		return err
	}
	if c.Manifest.Signature != c.DetachedSignature {
		return fmt.Errorf("%w: %w", manifest.ErrSignature, ErrSignatureDisagreement)
	}
	return nil
}

// ContextHash returns the AEAD context hash for every chunk.
func (c *Container) ContextHash() (digest.Digest, error) {
	return manifest.ContextHash(c.Manifest.Profile, c.Manifest.Device)
}

// ChunkPath returns the filesystem path of segment's chunk file.
func (c *Container) ChunkPath(segment manifest.ArchiveSegment) string {
	return filepath.Join(c.Directory, filepath.FromSlash(manifest.ChunkFileName(segment.Index)))
}

// UnlistedChunks returns the archive-relative names of entries under
// ChunksDir that no manifest segment names, sorted.
func (c *Container) UnlistedChunks() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.Directory, ChunksDir))
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	listed := make(map[string]bool, len(c.Manifest.Segments))
	for _, segment := range c.Manifest.Segments {
		listed[manifest.ChunkFileName(segment.Index)] = true
	}
	var unlisted []string
	for _, entry := range entries {
		name := path.Join(ChunksDir, entry.Name())
		if !listed[name] {
			unlisted = append(unlisted, name)
		}
	}
	return unlisted, nil
}

// ReadChunk reads segment's chunk file.
func (c *Container) ReadChunk(segment manifest.ArchiveSegment) ([]byte, error) {
	data, err := os.ReadFile(c.ChunkPath(segment))
	if err != nil {
		return nil, fmt.Errorf("reading chunk %d: %w", segment.Index, err)
	}
	return data, nil
}

// OpenChunk decrypts stored chunk bytes and checks the plaintext hash.
// It returns no plaintext on any failure.
func (c *Container) OpenChunk(cipher *segcipher.Cipher, contextHash digest.Digest, segment manifest.ArchiveSegment, stored []byte) ([]byte, error) {
	nonce := segcipher.Nonce(c.Header.NoncePrefix, segment.Index)
	aad := segcipher.AAD(c.HeaderHash, segment.Index, nonce, contextHash)
	plaintext, err := cipher.Open(nonce, stored, aad)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", segment.Index, err)
	}
	if digest.HashPlaintext(plaintext) != segment.PlaintextHash {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("%w: chunk %d", stream.ErrPlaintextHash, segment.Index)
	}
	return plaintext, nil
}

// UnwrapOptions configures Unwrap.
type UnwrapOptions struct {
	// Logger receives progress events. Nil discards.
	Logger *slog.Logger
}

// Summary describes an unwrapped archive.
type Summary struct {
	Segments        uint64
	PlaintextBytes  uint64
	DurationSeconds float64
	ChainTip        digest.Digest
}

// Unwrap verifies the archive at directory and writes its plaintext to
// destination, stopping at the first problem. On error destination
// holds a prefix that must be discarded.
func Unwrap(destination io.Writer, directory string, publicKey ed25519.PublicKey, resolve stream.KeyResolver, options UnwrapOptions) (*Summary, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	container, err := Load(directory)
	if err != nil {
		return nil, err
	}
	if err := container.VerifySignature(publicKey); err != nil {
		return nil, err
	}
	contextHash, err := container.ContextHash()
	if err != nil {
		return nil, err
	}
	if digest.HashDevice(container.Manifest.Device.ID) != container.Header.DeviceHash {
		return nil, fmt.Errorf("%w: header device hash does not match device %q", stream.ErrBinding, container.Manifest.Device.ID)
	}

	key, err := resolve(container.Header.KeyID)
	if err != nil {
		return nil, fmt.Errorf("resolving key %s: %w", container.Header.KeyID, err)
	}
	defer key.Close()
	cipher, err := segcipher.New(key, container.Header.Algorithm)
	if err != nil {
		return nil, err
	}

	accumulator := chain.New(container.HeaderHash)
	summary := &Summary{}
	for position, segment := range container.Manifest.Segments {
		if segment.Index != uint64(position) {
			return nil, &chain.Violation{Kind: chain.OutOfOrder, Index: segment.Index, Expected: uint64(position), Found: segment.Index}
		}
		stored, err := container.ReadChunk(segment)
		if err != nil {
			return nil, err
		}
		if digest.HashSegment(stored) != segment.Hash {
			return nil, &chain.Violation{Kind: chain.HashMismatch, Index: segment.Index}
		}
		if segment.ContinuityHash != accumulator.State() {
			return nil, &chain.Violation{Kind: chain.ChainMismatch, Index: segment.Index, Detail: "recorded previous state differs from replay"}
		}
		accumulator.Append(segment.Hash)

		plaintext, err := container.OpenChunk(cipher, contextHash, segment, stored)
		if err != nil {
			return nil, err
		}
		if _, err := destination.Write(plaintext); err != nil {
			return nil, fmt.Errorf("writing plaintext: %w", err)
		}
		summary.Segments++
		summary.PlaintextBytes += uint64(len(plaintext))
		summary.DurationSeconds += segment.DurationSeconds
	}
	if accumulator.State() != container.Manifest.ChainTip {
		return nil, &chain.Violation{Kind: chain.ChainMismatch, Index: summary.Segments, Detail: "chain tip differs from replay"}
	}
	summary.ChainTip = accumulator.State()

	logger.Info("unwrapped archive container",
		"directory", directory,
		"segments", summary.Segments,
		"plaintext_bytes", summary.PlaintextBytes,
	)
	return summary, nil
}
