// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package segcipher seals and opens individual container segments.
//
// Every segment is encrypted with an AEAD under the container's 32-byte
// symmetric key. Two algorithms are supported, selected by the header's
// algorithm byte: [ChaCha20Poly1305] and [AES256GCM]. Both use a
// 12-byte nonce and a 16-byte tag.
//
// Nonces are never random. [Nonce] derives them as the container's
// 4-byte random prefix followed by the big-endian segment sequence
// number, so nonces are unique within a container as long as sequence
// numbers are, and a reader can recompute the nonce a segment must
// have been sealed under. [CheckNonce] rejects any stored nonce that
// differs.
//
// [AAD] binds each ciphertext to its container (header hash), its
// position (sequence and nonce), and its context (the manifest hash for
// stream records, the archive context hash for archive chunks). A
// ciphertext moved to another container, another position, or paired
// with another manifest fails authentication.
//
// Authentication failures return [ErrAuth] and never any plaintext.
// Callers re-hash recovered plaintext and compare it with the signed
// plaintext hash as a second check.
package segcipher
