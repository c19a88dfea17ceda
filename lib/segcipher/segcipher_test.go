// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package segcipher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/testutil"
)

var algorithms = []Algorithm{AES256GCM, ChaCha20Poly1305}

func testAAD(seq uint64, nonce [NonceSize]byte) []byte {
	return AAD(digest.HashHeader([]byte("header")), seq, nonce, digest.HashManifest([]byte("manifest")))
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := testutil.SymmetricKey(t, "roundtrip")
	plaintext := testutil.Payload(4096, 1)
	nonce := Nonce([4]byte{1, 2, 3, 4}, 9)

	for _, algorithm := range algorithms {
		t.Run(algorithm.String(), func(t *testing.T) {
			sealed, err := Seal(key, algorithm, nonce, plaintext, testAAD(9, nonce))
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if len(sealed) != len(plaintext)+Overhead {
				t.Errorf("sealed length = %d, want %d", len(sealed), len(plaintext)+Overhead)
			}

			opened, err := Open(key, algorithm, nonce, sealed, testAAD(9, nonce))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Error("opened plaintext differs")
			}
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testutil.SymmetricKey(t, "tamper")
	otherKey := testutil.SymmetricKey(t, "other")
	plaintext := testutil.Payload(256, 2)
	nonce := Nonce([4]byte{9, 9, 9, 9}, 3)
	aad := testAAD(3, nonce)

	for _, algorithm := range algorithms {
		sealed, err := Seal(key, algorithm, nonce, plaintext, aad)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}

		tests := []struct {
			name   string
			key    *secret.Buffer
			nonce  [NonceSize]byte
			sealed []byte
			aad    []byte
		}{
			{"flipped ciphertext", key, nonce, testutil.FlipByte(sealed, 0), aad},
			{"flipped tag", key, nonce, testutil.FlipByte(sealed, -1), aad},
			{"wrong key", otherKey, nonce, sealed, aad},
			{"wrong nonce", key, Nonce([4]byte{9, 9, 9, 9}, 4), sealed, aad},
			{"wrong sequence in aad", key, nonce, sealed, testAAD(4, nonce)},
			{"truncated", key, nonce, sealed[:Overhead-1], aad},
		}
		for _, test := range tests {
			t.Run(algorithm.String()+"/"+test.name, func(t *testing.T) {
				opened, err := Open(test.key, algorithm, test.nonce, test.sealed, test.aad)
				if !errors.Is(err, ErrAuth) {
					t.Fatalf("Open error = %v, want ErrAuth", err)
				}
				if opened != nil {
					t.Error("Open returned plaintext on failure")
				}
			})
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	shortKey, err := secret.NewFromBytes(make([]byte, 16))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer shortKey.Close()

	if _, err := New(shortKey, ChaCha20Poly1305); !errors.Is(err, ErrKeySize) {
		t.Errorf("short key error = %v, want ErrKeySize", err)
	}
	if _, err := New(nil, ChaCha20Poly1305); !errors.Is(err, ErrKeySize) {
		t.Errorf("nil key error = %v, want ErrKeySize", err)
	}
	if _, err := New(testutil.SymmetricKey(t, "k"), Algorithm(7)); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("unknown algorithm error = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestNonceInjective(t *testing.T) {
	prefix := [4]byte{0xde, 0xad, 0xbe, 0xef}
	seen := make(map[[NonceSize]byte]uint64)
	for _, seq := range []uint64{0, 1, 2, 255, 256, 1 << 32, 1<<64 - 1} {
		nonce := Nonce(prefix, seq)
		if previous, exists := seen[nonce]; exists {
			t.Fatalf("sequences %d and %d share a nonce", previous, seq)
		}
		seen[nonce] = seq
		if !bytes.Equal(nonce[:4], prefix[:]) {
			t.Errorf("nonce %x does not start with prefix", nonce)
		}
	}

	if Nonce([4]byte{1}, 5) == Nonce([4]byte{2}, 5) {
		t.Error("different prefixes produced the same nonce")
	}
}

func TestCheckNonce(t *testing.T) {
	prefix := [4]byte{1, 1, 1, 1}
	if err := CheckNonce(prefix, 10, Nonce(prefix, 10)); err != nil {
		t.Errorf("CheckNonce rejected derived nonce: %v", err)
	}
	if err := CheckNonce(prefix, 10, Nonce(prefix, 11)); !errors.Is(err, ErrNonceMismatch) {
		t.Errorf("CheckNonce error = %v, want ErrNonceMismatch", err)
	}
}

func TestAADLayout(t *testing.T) {
	header := digest.HashHeader([]byte("h"))
	context := digest.HashManifest([]byte("m"))
	nonce := Nonce([4]byte{7, 7, 7, 7}, 0x0102)

	aad := AAD(header, 0x0102, nonce, context)
	if len(aad) != AADSize {
		t.Fatalf("AAD length = %d, want %d", len(aad), AADSize)
	}
	if !bytes.Equal(aad[:32], header[:]) {
		t.Error("AAD does not start with header hash")
	}
	if !bytes.Equal(aad[32:40], []byte{0, 0, 0, 0, 0, 0, 1, 2}) {
		t.Errorf("AAD sequence = %x", aad[32:40])
	}
	if !bytes.Equal(aad[40:52], nonce[:]) {
		t.Error("AAD nonce misplaced")
	}
	if !bytes.Equal(aad[52:], context[:]) {
		t.Error("AAD does not end with context hash")
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, algorithm := range algorithms {
		parsed, err := ParseAlgorithm(algorithm.String())
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", algorithm, err)
		}
		if parsed != algorithm {
			t.Errorf("ParseAlgorithm(%q) = %v", algorithm, parsed)
		}
	}
	if _, err := ParseAlgorithm("rot13"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("ParseAlgorithm(rot13) error = %v", err)
	}
}
