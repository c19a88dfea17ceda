// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package format reads and writes the stream container wire format.
//
// A stream container is a magic string, a wire version byte, the
// 58-byte [Header], then zero or more records until end of stream:
//
//	"TRST" | wire version (1) | header (58) | record*
//
// The header is fixed-size and big-endian:
//
//	version (1) | algorithm (1) | key id (16) | device hash (32) |
//	nonce prefix (4) | chunk size (4)
//
// Each record is:
//
//	seq u64 | nonce [12] | manifest_len u32 | manifest |
//	signature [64] | public key [32] | ciphertext_len u32 | ciphertext
//
// Length fields are bounded ([MaxManifestSize], [MaxCiphertextSize]) so
// a corrupt length can never force an unbounded allocation.
//
// [Reader.ReadRecord] returns io.EOF only when the stream ends exactly
// on a record boundary. A stream that ends inside a record returns an
// [*Error] of kind [Truncated] that carries the byte offset and record
// index, which verification reports as an unexpected end rather than a
// clean one.
//
// This package checks structure only. It does not hash, decrypt, or
// verify signatures.
package format
