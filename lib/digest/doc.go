// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides the domain-separated BLAKE3 hashes used by
// every part of the trust container protocol.
//
// Each hash domain has its own 32-byte BLAKE3 key. The same input
// bytes therefore hash differently as a container header, a segment,
// a manifest, or a chain link, and a value computed in one role can
// never be presented as a value of another role:
//
//   - [HashHeader]: the container identity, hash of the 58-byte header
//   - [HashSegment]: stored segment bytes (ciphertext or chunk file)
//   - [HashPlaintext]: decrypted segment plaintext (pt_hash)
//   - [HashManifest]: manifest bytes bound into the AEAD AAD
//   - [HashChainLink]: one step of the continuity chain
//   - [HashDevice]: the device identity string carried in headers
//
// [Digest] values are rendered as lowercase hex by [Format] and parsed
// by [Parse]. In JSON they marshal as the same hex string.
//
// This package depends only on github.com/zeebo/blake3.
package digest
