// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive writes and reads the directory variant of a trust
// container:
//
//	manifest.json            canonical JSON, carries the signature field
//	chunks/00000.bin         one AEAD-sealed file per segment
//	signatures/manifest.sig  detached "ed25519:<base64>" signature
//
// The manifest enumerates every chunk with its segment hash, plaintext
// hash, timing, and the chain state it extends. Chunks are sealed with
// an AAD built from the archive context hash (profile and device), so
// [Write] seals them on a worker pool and then advances the chain in
// index order.
//
// [Write] builds the archive in a temporary sibling directory and
// renames it into place, so a failed wrap leaves nothing behind.
// [Load] reads the manifest and detached signature without touching
// chunk files; [Unwrap] verifies everything strictly and recovers the
// plaintext. Diagnostic verification that reports every problem lives
// in lib/verify.
package archive
