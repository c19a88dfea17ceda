// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock injects wall time into container construction and
// verification.
//
// Manifests carry a creation timestamp and verification reports carry
// an elapsed time. Both come from a [Clock] so tests can pin them:
// production code passes [Real], tests pass [Fake] and move time with
// [FakeClock.Advance]. Code in this module never calls time.Now
// directly.
package clock
