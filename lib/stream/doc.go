// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream builds and opens stream trust containers: a single
// byte stream of signed, encrypted records suitable for capture devices
// that produce data incrementally.
//
// Each record carries a CBOR manifest signed under the stream domain,
// and the segment ciphertext sealed with an AAD that includes the hash
// of that manifest. The last record is marked final and its manifest
// commits the continuity chain tip over every earlier ciphertext, so a
// container that loses its tail, or whose records are reordered,
// removed, or duplicated, no longer verifies.
//
// Two ways to write:
//
//   - [Writer] for incremental capture. Each segment is sealed when the
//     next one arrives (it is not final), and the last one at Close.
//   - [Wrap] for a complete input. Non-final segments are sealed by a
//     bounded worker pool, since sealing has no chain dependency; the
//     chain then advances strictly in index order as records are
//     written.
//
// [Unwrap] recovers plaintext and stops at the first problem.
// [CheckRecord] and [OpenRecord] are the per-record steps it uses, also
// used by the verification engine, which keeps going to collect full
// diagnostics instead.
package stream
