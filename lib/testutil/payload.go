// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"math/rand/v2"
)

// Payload returns size deterministic pseudo-random bytes. The same
// seed always yields the same bytes.
func Payload(size int, seed uint64) []byte {
	var chachaSeed [32]byte
	for index := range 8 {
		chachaSeed[index] = byte(seed >> (8 * index))
	}
	source := rand.NewChaCha8(chachaSeed)
	data := make([]byte, size)
	source.Read(data)
	return data
}

// FlipByte returns a copy of data with the byte at index inverted.
// Negative index counts from the end.
func FlipByte(data []byte, index int) []byte {
	if index < 0 {
		index += len(data)
	}
	flipped := append([]byte(nil), data...)
	flipped[index] ^= 0xff
	return flipped
}
