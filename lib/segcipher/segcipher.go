// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package segcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

const (
	// KeySize is the symmetric key size for every algorithm.
	KeySize = 32

	// NonceSize is the AEAD nonce size for every algorithm.
	NonceSize = 12

	// NoncePrefixSize is the random per-container part of a nonce.
	NoncePrefixSize = 4

	// Overhead is the authentication tag size appended to ciphertext.
	Overhead = 16

	// AADSize is the length of the associated data built by AAD:
	// header hash, sequence, nonce, context hash.
	AADSize = digest.Size + 8 + NonceSize + digest.Size
)

var (
	// ErrAuth means the tag did not verify: wrong key, tampered
	// ciphertext, or mismatched associated data.
	ErrAuth = errors.New("segcipher: authentication failed")

	// ErrKeySize means the key is not KeySize bytes.
	ErrKeySize = errors.New("segcipher: key must be 32 bytes")

	// ErrNonceMismatch means a stored nonce is not the one derived from
	// the container prefix and the segment sequence.
	ErrNonceMismatch = errors.New("segcipher: nonce does not match sequence")

	// ErrUnknownAlgorithm means the algorithm byte is not supported.
	ErrUnknownAlgorithm = errors.New("segcipher: unknown algorithm")
)

// Algorithm identifies the AEAD used for a container. The numeric
// values are the header's algorithm byte.
type Algorithm uint8

const (
	// AES256GCM is AES-256 in Galois/Counter Mode.
	AES256GCM Algorithm = 1

	// ChaCha20Poly1305 is the RFC 8439 AEAD.
	ChaCha20Poly1305 Algorithm = 2
)

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AES256GCM:
		return "aes-256-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Valid reports whether a names a supported algorithm.
func (a Algorithm) Valid() bool {
	return a == AES256GCM || a == ChaCha20Poly1305
}

// ParseAlgorithm maps a configuration name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "aes-256-gcm":
		return AES256GCM, nil
	case "chacha20-poly1305":
		return ChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// Cipher is an AEAD instance bound to one container key. It is safe
// for concurrent use, so a worker pool can share one Cipher.
type Cipher struct {
	algorithm Algorithm
	aead      cipher.AEAD
}

// New creates a Cipher for algorithm keyed by key. The key is borrowed
// for the duration of the call and NOT closed.
func New(key *secret.Buffer, algorithm Algorithm) (*Cipher, error) {
	if key == nil || key.Len() != KeySize {
		return nil, ErrKeySize
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch algorithm {
	case AES256GCM:
		var block cipher.Block
		block, err = aes.NewCipher(key.Bytes())
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case ChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key.Bytes())
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s cipher: %w", algorithm, err)
	}
	return &Cipher{algorithm: algorithm, aead: aead}, nil
}

// Algorithm returns the algorithm the Cipher was created with.
func (c *Cipher) Algorithm() Algorithm {
	return c.algorithm
}

// Seal encrypts plaintext and returns ciphertext with the tag appended.
func (c *Cipher) Seal(nonce [NonceSize]byte, plaintext, aad []byte) []byte {
	return c.aead.Seal(make([]byte, 0, len(plaintext)+Overhead), nonce[:], plaintext, aad)
}

// Open authenticates and decrypts sealed. On failure it returns
// ErrAuth and a nil slice.
func (c *Cipher) Open(nonce [NonceSize]byte, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrAuth)
	}
	plaintext, err := c.aead.Open(nil, nonce[:], sealed, aad)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}

// Seal is a one-shot form of [Cipher.Seal].
func Seal(key *secret.Buffer, algorithm Algorithm, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	c, err := New(key, algorithm)
	if err != nil {
		return nil, err
	}
	return c.Seal(nonce, plaintext, aad), nil
}

// Open is a one-shot form of [Cipher.Open].
func Open(key *secret.Buffer, algorithm Algorithm, nonce [NonceSize]byte, sealed, aad []byte) ([]byte, error) {
	c, err := New(key, algorithm)
	if err != nil {
		return nil, err
	}
	return c.Open(nonce, sealed, aad)
}

// Nonce derives the nonce for sequence seq: prefix || be64(seq).
func Nonce(prefix [NoncePrefixSize]byte, seq uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:NoncePrefixSize], prefix[:])
	binary.BigEndian.PutUint64(nonce[NoncePrefixSize:], seq)
	return nonce
}

// CheckNonce verifies that stored is the nonce derived for seq.
func CheckNonce(prefix [NoncePrefixSize]byte, seq uint64, stored [NonceSize]byte) error {
	expected := Nonce(prefix, seq)
	if subtle.ConstantTimeCompare(expected[:], stored[:]) != 1 {
		return fmt.Errorf("%w: sequence %d", ErrNonceMismatch, seq)
	}
	return nil
}

// AAD builds the associated data for one segment:
// headerHash || be64(seq) || nonce || contextHash.
func AAD(headerHash digest.Digest, seq uint64, nonce [NonceSize]byte, contextHash digest.Digest) []byte {
	aad := make([]byte, 0, AADSize)
	aad = append(aad, headerHash[:]...)
	aad = binary.BigEndian.AppendUint64(aad, seq)
	aad = append(aad, nonce[:]...)
	aad = append(aad, contextHash[:]...)
	return aad
}
