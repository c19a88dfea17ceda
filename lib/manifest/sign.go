// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Domain separators. The trailing NUL keeps one domain from being a
// prefix of another domain plus data.
const (
	StreamDomain  = "trustedge.manifest.v1\x00"
	ArchiveDomain = "trustedge.archive.manifest.v1\x00"
)

// SignatureSize is the Ed25519 signature length.
const SignatureSize = ed25519.SignatureSize

// textPrefix tags the algorithm in key and signature text forms.
const textPrefix = "ed25519:"

// ErrSignature is wrapped by every verification failure.
var ErrSignature = errors.New("manifest: signature verification failed")

func signedMessage(domain string, data []byte) []byte {
	message := make([]byte, 0, len(domain)+len(data))
	message = append(message, domain...)
	return append(message, data...)
}

// Sign signs domain || data with signer, which must hold an Ed25519
// key.
func Sign(signer crypto.Signer, domain string, data []byte) ([]byte, error) {
	if domain == "" {
		return nil, errors.New("manifest: empty signing domain")
	}
	if _, ok := signer.Public().(ed25519.PublicKey); !ok {
		return nil, fmt.Errorf("manifest: signer holds %T, want ed25519.PublicKey", signer.Public())
	}
	signature, err := signer.Sign(rand.Reader, signedMessage(domain, data), crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("manifest: signing: %w", err)
	}
	if len(signature) != SignatureSize {
		return nil, fmt.Errorf("manifest: signer returned %d-byte signature", len(signature))
	}
	return signature, nil
}

// Verify checks signature over domain || data.
func Verify(publicKey ed25519.PublicKey, domain string, data, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key is %d bytes, want %d", ErrSignature, len(publicKey), ed25519.PublicKeySize)
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes, want %d", ErrSignature, len(signature), SignatureSize)
	}
	if !ed25519.Verify(publicKey, signedMessage(domain, data), signature) {
		return fmt.Errorf("%w: signature does not match", ErrSignature)
	}
	return nil
}

// PublicKeyOf returns the Ed25519 public key held by signer.
func PublicKeyOf(signer crypto.Signer) (ed25519.PublicKey, error) {
	publicKey, ok := signer.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("manifest: signer holds %T, want ed25519.PublicKey", signer.Public())
	}
	return publicKey, nil
}

// FormatSignature returns the "ed25519:<base64>" text form.
func FormatSignature(signature []byte) string {
	return textPrefix + base64.StdEncoding.EncodeToString(signature)
}

// ParseSignature decodes the text form of a signature.
func ParseSignature(text string) ([]byte, error) {
	return parseText(text, SignatureSize, "signature")
}

// FormatPublicKey returns the "ed25519:<base64>" text form.
func FormatPublicKey(publicKey ed25519.PublicKey) string {
	return textPrefix + base64.StdEncoding.EncodeToString(publicKey)
}

// ParsePublicKey decodes the text form of a public key.
func ParsePublicKey(text string) (ed25519.PublicKey, error) {
	decoded, err := parseText(text, ed25519.PublicKeySize, "public key")
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(decoded), nil
}

// FormatPrivateKey returns the text form of the 32-byte private seed.
func FormatPrivateKey(privateKey ed25519.PrivateKey) string {
	return textPrefix + base64.StdEncoding.EncodeToString(privateKey.Seed())
}

// ParsePrivateKey decodes the text form written by FormatPrivateKey.
func ParsePrivateKey(text string) (ed25519.PrivateKey, error) {
	seed, err := parseText(text, ed25519.SeedSize, "private key")
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func parseText(text string, size int, what string) ([]byte, error) {
	text = strings.TrimSpace(text)
	encoded, ok := strings.CutPrefix(text, textPrefix)
	if !ok {
		return nil, fmt.Errorf("manifest: %s lacks %q prefix", what, textPrefix)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("manifest: decoding %s: %w", what, err)
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("manifest: %s is %d bytes, want %d", what, len(decoded), size)
	}
	return decoded, nil
}
