// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for trustedge packages.
//
// [Payload] generates deterministic pseudo-random plaintext so that a
// failing test reproduces byte for byte. [FlipByte] returns a copy of
// its input with one byte corrupted, the basic tamper primitive.
//
// [SigningKey] and [SymmetricKey] derive deterministic key material
// from a label, so two calls with the same label agree and different
// labels give unrelated keys. Symmetric keys are returned in a
// [secret.Buffer] that is closed when the test ends.
//
// [CopyDir] clones an archive directory so one test can tamper with a
// copy while another reads the pristine original.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation (device ids, profiles).
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
