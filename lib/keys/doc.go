// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys supplies signing, verifying, and symmetric keys to
// container construction and verification.
//
// Core packages never touch key storage. They receive a crypto.Signer,
// an ed25519.PublicKey, or a *secret.Buffer, obtained through the
// [Provider] interface. A [Backend] is a Provider with a name and a
// capability set, created through a registry:
//
//	backend, err := keys.Open("software", keys.Options{Directory: dir, Passphrase: pass})
//
// Two backends are registered:
//
//   - "software": keys persisted in a directory. device.key and
//     device.pub hold the Ed25519 device key in "ed25519:<base64>"
//     text form. master.age holds a 32-byte master secret sealed with
//     an age scrypt passphrase.
//   - "memory": keys held in process memory, for tests and demos.
//
// Container keys are never stored. Each container gets a random
// 16-byte key id, and [Backend.SymmetricKey] derives its key from the
// master secret with HKDF-SHA256, so the same master and key id always
// give the same container key.
//
// All returned *secret.Buffer values are owned by the caller, who must
// Close them.
package keys
