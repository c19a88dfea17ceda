// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify checks trust containers and produces a [Report] that
// says what failed and where.
//
// Verification moves through fixed stages. The header (stream) or
// manifest and embedded header (archive) are parsed first; a
// structural failure ends verification with signature and continuity
// both unknown. Signatures are checked next; a signature failure ends
// verification with continuity skipped, because chain data from an
// unauthenticated manifest proves nothing. Continuity is checked last
// by replaying the hash chain.
//
// Unlike the strict readers in lib/stream and lib/archive, the
// verifier keeps going past continuity problems so a single report
// lists every gap, reorder, hash mismatch, and AEAD failure.
//
// Per-segment work (signature checks, hashing, decryption) runs on a
// worker pool. The chain replay that follows is sequential.
package verify
