// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
)

var (
	// ErrBinding means a correctly signed manifest describes a
	// different container, key, or position than the record it is in.
	ErrBinding = errors.New("stream: manifest does not match container")

	// ErrPlaintextHash means decrypted plaintext differs from the
	// signed plaintext hash or length.
	ErrPlaintextHash = errors.New("stream: plaintext does not match manifest")
)

// KeyResolver returns the symmetric key for a container key id. The
// caller of the resolver owns and closes the returned buffer.
type KeyResolver func(keyID format.KeyID) (*secret.Buffer, error)

// StaticKey returns a KeyResolver that hands out copies of key.
func StaticKey(key *secret.Buffer) KeyResolver {
	return func(format.KeyID) (*secret.Buffer, error) {
		return key.Clone()
	}
}

// CheckRecord verifies the signature on record and that its manifest
// is bound to this container and position. It does not decrypt.
// Failures wrap manifest.ErrSignature, ErrBinding, or
// manifest.ErrInvalid.
func CheckRecord(header format.Header, headerHash digest.Digest, record *format.Record, publicKey ed25519.PublicKey) (*manifest.Segment, error) {
	if !bytes.Equal(record.PublicKey[:], publicKey) {
		return nil, fmt.Errorf("%w: record %d names a different signing key", manifest.ErrSignature, record.Sequence)
	}
	if err := manifest.Verify(publicKey, manifest.StreamDomain, record.Manifest, record.Signature[:]); err != nil {
		return nil, fmt.Errorf("record %d: %w", record.Sequence, err)
	}

	segment, err := manifest.DecodeSegment(record.Manifest)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", record.Sequence, err)
	}
	switch {
	case segment.HeaderHash != headerHash:
		return nil, fmt.Errorf("%w: record %d manifest names header %s", ErrBinding, record.Sequence, segment.HeaderHash)
	case segment.KeyID != header.KeyID:
		return nil, fmt.Errorf("%w: record %d manifest names key %s", ErrBinding, record.Sequence, segment.KeyID)
	case segment.Sequence != record.Sequence:
		return nil, fmt.Errorf("%w: record %d manifest names sequence %d", ErrBinding, record.Sequence, segment.Sequence)
	}
	return segment, nil
}

// OpenRecord decrypts record and checks the plaintext against the
// signed hash and length. It returns no plaintext on any failure.
// Failures wrap segcipher.ErrNonceMismatch, segcipher.ErrAuth, or
// ErrPlaintextHash.
func OpenRecord(c *segcipher.Cipher, header format.Header, headerHash digest.Digest, record *format.Record, segment *manifest.Segment) ([]byte, error) {
	if err := segcipher.CheckNonce(header.NoncePrefix, record.Sequence, record.Nonce); err != nil {
		return nil, err
	}
	aad := segcipher.AAD(headerHash, record.Sequence, record.Nonce, digest.HashManifest(record.Manifest))
	plaintext, err := c.Open(record.Nonce, record.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", record.Sequence, err)
	}
	if uint64(len(plaintext)) != segment.PlaintextLength || digest.HashPlaintext(plaintext) != segment.PlaintextHash {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("%w: record %d", ErrPlaintextHash, record.Sequence)
	}
	return plaintext, nil
}

// UnwrapOptions configures Unwrap.
type UnwrapOptions struct {
	// DeviceID, when set, must hash to the header's device hash.
	DeviceID string

	// Logger receives progress events. Nil discards.
	Logger *slog.Logger
}

// Unwrap verifies the container in source and writes its plaintext to
// destination, stopping at the first problem of any kind. Plaintext is
// written as each record verifies, so on error destination holds a
// prefix that must be discarded.
func Unwrap(destination io.Writer, source io.Reader, publicKey ed25519.PublicKey, resolve KeyResolver, options UnwrapOptions) (*Summary, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reader, err := format.NewReader(source)
	if err != nil {
		return nil, err
	}
	header := reader.Header()
	headerHash := header.Hash()
	if options.DeviceID != "" && digest.HashDevice(options.DeviceID) != header.DeviceHash {
		return nil, fmt.Errorf("%w: header device hash does not match %q", ErrBinding, options.DeviceID)
	}

	key, err := resolve(header.KeyID)
	if err != nil {
		return nil, fmt.Errorf("resolving key %s: %w", header.KeyID, err)
	}
	defer key.Close()
	c, err := segcipher.New(key, header.Algorithm)
	if err != nil {
		return nil, err
	}

	accumulator := chain.New(headerHash)
	summary := &Summary{Header: header, HeaderHash: headerHash}
	finished := false

	for {
		record, err := reader.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if finished {
			return nil, &chain.Violation{Kind: chain.ChainMismatch, Index: record.Sequence, Detail: "record after final segment"}
		}
		if record.Sequence != summary.Segments {
			return nil, &chain.Violation{Kind: chain.OutOfOrder, Index: record.Sequence, Expected: summary.Segments, Found: record.Sequence}
		}

		segment, err := CheckRecord(header, headerHash, record, publicKey)
		if err != nil {
			return nil, err
		}
		if segment.Final {
			if *segment.ChainTip != accumulator.State() {
				return nil, &chain.Violation{Kind: chain.ChainMismatch, Index: record.Sequence, Detail: "chain tip differs from replay"}
			}
			finished = true
		}

		plaintext, err := OpenRecord(c, header, headerHash, record, segment)
		if err != nil {
			return nil, err
		}
		if _, err := destination.Write(plaintext); err != nil {
			return nil, fmt.Errorf("writing plaintext: %w", err)
		}
		accumulator.Append(digest.HashSegment(record.Ciphertext))
		summary.Segments++
		summary.PlaintextBytes += uint64(len(plaintext))
	}

	if summary.Segments == 0 {
		return nil, ErrEmpty
	}
	if !finished {
		return nil, &chain.Violation{Kind: chain.UnexpectedEnd, Index: summary.Segments, Detail: "no final segment"}
	}
	summary.ChainTip = accumulator.State()

	logger.Info("unwrapped stream container",
		"segments", summary.Segments,
		"plaintext_bytes", summary.PlaintextBytes,
		"header_hash", headerHash.String(),
	)
	return summary, nil
}
