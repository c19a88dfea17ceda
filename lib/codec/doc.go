// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration for stream
// manifests.
//
// TrustEdge uses two serialization formats with a clear boundary:
//
//   - CBOR for stream records: the per-record manifest that is signed
//     and bound into the segment AEAD.
//   - Canonical JSON (lib/canonjson) for the archive manifest, which
//     operators read and diff by hand.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Stream manifests use integer keys (`cbor:"1,keyasint"`) so records
// stay small on constrained capture devices.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
