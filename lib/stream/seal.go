// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/clock"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
)

// DefaultChunkSize is used when Options.ChunkSize is zero.
const DefaultChunkSize = 1 << 20

// MaxChunkSize is the largest plaintext segment a record can hold.
const MaxChunkSize = format.MaxCiphertextSize - segcipher.Overhead

var (
	// ErrEmpty means there was no plaintext to wrap, or no complete
	// record to open.
	ErrEmpty = errors.New("stream: no segments")

	// ErrClosed means a Writer was used after Close.
	ErrClosed = errors.New("stream: writer closed")
)

// Options configures container construction.
type Options struct {
	// Algorithm selects the AEAD. Zero means ChaCha20Poly1305.
	Algorithm segcipher.Algorithm

	// ChunkSize is the plaintext bytes per segment for Wrap and
	// Writer.Write. Zero means DefaultChunkSize.
	ChunkSize int

	// DeviceID is hashed into the header.
	DeviceID string

	// KeyID names the symmetric key in the header so a key provider
	// can derive it again at open time. Zero means a new random id,
	// which only suits keys that are not derived from the id.
	KeyID format.KeyID

	// Metadata is recorded in the first record's manifest.
	Metadata map[string]any

	// Workers bounds the Wrap sealing pool. Zero means GOMAXPROCS.
	// Signers that are not safe for concurrent use need 1.
	Workers int

	// Clock supplies manifest timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger receives progress events. Nil discards.
	Logger *slog.Logger
}

func (o *Options) normalize() error {
	if o.Algorithm == 0 {
		o.Algorithm = segcipher.ChaCha20Poly1305
	}
	if !o.Algorithm.Valid() {
		return fmt.Errorf("%w: %d", segcipher.ErrUnknownAlgorithm, o.Algorithm)
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkSize < 0 || o.ChunkSize > MaxChunkSize {
		return fmt.Errorf("stream: chunk size %d out of range (1..%d)", o.ChunkSize, MaxChunkSize)
	}
	if o.KeyID == (format.KeyID{}) {
		o.KeyID = format.NewKeyID()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	o.Clock = clock.Or(o.Clock)
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Summary describes a written or opened container.
type Summary struct {
	Header         format.Header
	HeaderHash     digest.Digest
	Segments       uint64
	PlaintextBytes uint64
	ChainTip       digest.Digest
}

// sealer turns plaintext segments into records for one container. It
// holds no mutable state, so seal may run concurrently.
type sealer struct {
	header     format.Header
	headerHash digest.Digest
	cipher     *segcipher.Cipher
	signer     crypto.Signer
	publicKey  ed25519.PublicKey
	options    Options
}

func newSealer(signer crypto.Signer, key *secret.Buffer, options Options) (*sealer, error) {
	publicKey, err := manifest.PublicKeyOf(signer)
	if err != nil {
		return nil, err
	}
	c, err := segcipher.New(key, options.Algorithm)
	if err != nil {
		return nil, err
	}

	header := format.Header{
		Version:    format.HeaderVersion,
		Algorithm:  options.Algorithm,
		KeyID:      options.KeyID,
		DeviceHash: digest.HashDevice(options.DeviceID),
		ChunkSize:  uint32(options.ChunkSize),
	}
	if _, err := rand.Read(header.NoncePrefix[:]); err != nil {
		return nil, fmt.Errorf("generating nonce prefix: %w", err)
	}

	return &sealer{
		header:     header,
		headerHash: header.Hash(),
		cipher:     c,
		signer:     signer,
		publicKey:  publicKey,
		options:    options,
	}, nil
}

// seal builds record seq. tip must be set exactly when final is.
func (s *sealer) seal(seq uint64, plaintext []byte, final bool, tip *digest.Digest) (*format.Record, error) {
	segment := &manifest.Segment{
		Version:         manifest.SegmentVersion,
		TimestampMillis: s.options.Clock.Now().UnixMilli(),
		Sequence:        seq,
		HeaderHash:      s.headerHash,
		PlaintextHash:   digest.HashPlaintext(plaintext),
		PlaintextLength: uint64(len(plaintext)),
		KeyID:           s.header.KeyID,
		Final:           final,
		ChainTip:        tip,
	}
	if seq == 0 {
		segment.Metadata = s.options.Metadata
	}

	manifestBytes, err := manifest.EncodeSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", seq, err)
	}
	signature, err := manifest.Sign(s.signer, manifest.StreamDomain, manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", seq, err)
	}

	nonce := segcipher.Nonce(s.header.NoncePrefix, seq)
	aad := segcipher.AAD(s.headerHash, seq, nonce, digest.HashManifest(manifestBytes))

	record := &format.Record{
		Sequence:   seq,
		Nonce:      nonce,
		Manifest:   manifestBytes,
		Ciphertext: s.cipher.Seal(nonce, plaintext, aad),
	}
	copy(record.Signature[:], signature)
	copy(record.PublicKey[:], s.publicKey)
	return record, nil
}
