// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest encodes and signs the manifests that commit a
// container's contents to a signing identity.
//
// Stream containers carry one [Segment] manifest per record, encoded as
// deterministic CBOR with integer keys. Archive containers carry one
// [Archive] manifest (manifest.json) in canonical JSON that enumerates
// every segment.
//
// Signatures are Ed25519 over a domain separator followed by the
// manifest bytes:
//
//	signature = Ed25519(domain || manifest_bytes)
//
// The two domains ([StreamDomain], [ArchiveDomain]) differ from each
// other and from any generic signing context, so a signature made for
// one purpose never verifies for another. Ed25519 is deterministic:
// identical bytes and key always give the identical signature.
//
// Signing takes a crypto.Signer so hardware-backed keys work without
// this package knowing about them. Verification takes a raw
// ed25519.PublicKey and returns errors wrapping [ErrSignature].
//
// Keys and signatures have a text form, "ed25519:<base64>", used in
// manifest.json, signatures/manifest.sig, and key files.
package manifest
