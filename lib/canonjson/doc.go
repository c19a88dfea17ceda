// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonjson renders JSON in the canonical form that archive
// manifests are signed over.
//
// The canonical form has object keys sorted by byte order at every
// depth, no insignificant whitespace, numbers copied verbatim from the
// input (never round-tripped through float64), and no HTML escaping.
// Duplicate object keys are rejected rather than resolved, so two
// verifiers can never disagree about what a signed manifest says.
//
// [Marshal] encodes a Go value canonically. [Canonicalize] rewrites
// existing JSON bytes. [WithoutField] produces the to-be-signed form of
// a manifest by dropping a top-level field (the embedded signature),
// whether or not that field is present.
package canonjson
