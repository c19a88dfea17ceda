// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the byte length of every digest.
const Size = 32

// Digest is a 32-byte BLAKE3 keyed hash.
type Digest [Size]byte

// domainKey is a 32-byte BLAKE3 key that selects a hash domain.
type domainKey [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes.
// Changing any of them invalidates every container ever written.
var (
	headerDomainKey    = newDomainKey("trustedge.header.v1")
	segmentDomainKey   = newDomainKey("trustedge.segment.v1")
	plaintextDomainKey = newDomainKey("trustedge.plaintext.v1")
	manifestDomainKey  = newDomainKey("trustedge.manifest.v1")
	chainDomainKey     = newDomainKey("trustedge.chain.v1")
	deviceDomainKey    = newDomainKey("trustedge.device.v1")
)

func newDomainKey(name string) domainKey {
	if len(name) > 32 {
		panic("digest: domain name longer than 32 bytes: " + name)
	}
	var key domainKey
	copy(key[:], name)
	return key
}

// HashHeader returns the container identity for serialized header
// bytes.
func HashHeader(headerBytes []byte) Digest {
	return keyedHash(headerDomainKey, headerBytes)
}

// HashSegment hashes the stored form of a segment: the AEAD output
// for stream records, the chunk file contents for archives.
func HashSegment(stored []byte) Digest {
	return keyedHash(segmentDomainKey, stored)
}

// HashPlaintext hashes decrypted segment plaintext. Recorded in
// manifests as pt_hash and re-checked after decryption.
func HashPlaintext(plaintext []byte) Digest {
	return keyedHash(plaintextDomainKey, plaintext)
}

// HashManifest hashes encoded manifest bytes.
func HashManifest(manifestBytes []byte) Digest {
	return keyedHash(manifestDomainKey, manifestBytes)
}

// HashDevice hashes a device identity string for the header's
// device hash field.
func HashDevice(deviceID string) Digest {
	return keyedHash(deviceDomainKey, []byte(deviceID))
}

// HashChainLink computes one continuity chain step over the
// concatenation previous || segment.
func HashChainLink(previous, segment Digest) Digest {
	var combined [2 * Size]byte
	copy(combined[:Size], previous[:])
	copy(combined[Size:], segment[:])
	return keyedHash(chainDomainKey, combined[:])
}

// HashChainSeed hashes an arbitrary seed into the chain domain. Used
// for the genesis state.
func HashChainSeed(seed []byte) Digest {
	return keyedHash(chainDomainKey, seed)
}

// SegmentHasher streams bytes into the segment domain. Use it when the
// stored segment is read from disk rather than held in memory.
type SegmentHasher struct {
	hasher *blake3.Hasher
}

// NewSegmentHasher returns a hasher positioned at the start of the
// segment domain.
func NewSegmentHasher() *SegmentHasher {
	return &SegmentHasher{hasher: newKeyed(segmentDomainKey)}
}

// Write implements io.Writer.
func (h *SegmentHasher) Write(p []byte) (int, error) {
	return h.hasher.Write(p)
}

// Sum returns the digest of everything written so far.
func (h *SegmentHasher) Sum() Digest {
	var result Digest
	copy(result[:], h.hasher.Sum(nil))
	return result
}

// HashSegmentReader streams r through the segment domain.
func HashSegmentReader(r io.Reader) (Digest, error) {
	hasher := NewSegmentHasher()
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, fmt.Errorf("hashing segment: %w", err)
	}
	return hasher.Sum(), nil
}

// Equal compares two digests in constant time.
func Equal(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// IsZero reports whether d is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the hex form of d.
func (d Digest) String() string {
	return Format(d)
}

// MarshalText implements encoding.TextMarshaler so digests appear as
// hex strings in JSON manifests and reports.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(Format(d)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Format returns the lowercase hex encoding of d.
func Format(d Digest) string {
	return hex.EncodeToString(d[:])
}

// Parse decodes a 64-character hex string.
func Parse(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != Size {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(decoded), Size)
	}
	copy(d[:], decoded)
	return d, nil
}

func newKeyed(key domainKey) *blake3.Hasher {
	// NewKeyed only fails for keys that are not 32 bytes, which the
	// domainKey type rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func keyedHash(key domainKey, data []byte) Digest {
	hasher := newKeyed(key)
	hasher.Write(data)
	var result Digest
	copy(result[:], hasher.Sum(nil))
	return result
}
