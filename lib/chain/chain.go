// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
)

// State is one 32-byte chain state.
type State = digest.Digest

// Genesis returns the initial chain state for a container whose header
// hashes to seed.
func Genesis(seed digest.Digest) State {
	return digest.HashChainSeed(seed[:])
}

// Next advances previous by one segment.
func Next(previous State, segmentHash digest.Digest) State {
	return digest.HashChainLink(previous, segmentHash)
}

// Chain accumulates chain state on the writer side. It is not safe for
// concurrent use; one writer appends segments in index order.
type Chain struct {
	state  State
	length uint64
}

// New returns a Chain positioned at Genesis(seed).
func New(seed digest.Digest) *Chain {
	return &Chain{state: Genesis(seed)}
}

// Append advances the chain over segmentHash and returns the state
// before the append, which archive manifests record per segment.
func (c *Chain) Append(segmentHash digest.Digest) (previous State) {
	previous = c.state
	c.state = Next(c.state, segmentHash)
	c.length++
	return previous
}

// State returns the current chain state (the tip after Len appends).
func (c *Chain) State() State {
	return c.state
}

// Len returns the number of segments appended.
func (c *Chain) Len() uint64 {
	return c.length
}

// Compute returns the tip after appending every hash to Genesis(seed).
func Compute(seed digest.Digest, segmentHashes []digest.Digest) State {
	c := New(seed)
	for _, hash := range segmentHashes {
		c.Append(hash)
	}
	return c.State()
}
