// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain implements the continuity hash chain that binds the
// segments of a container into one ordered sequence.
//
// The chain starts at [Genesis], derived from the container's header
// hash, and advances once per segment with [Next]:
//
//	state[0]   = Genesis(headerHash)
//	state[i+1] = Next(state[i], segmentHash[i])
//
// The final state (the chain tip) is signed. Removing, inserting,
// reordering, or altering any segment changes every later state, so
// the tip no longer matches.
//
// Writers use [Chain], which advances strictly in order. Verifiers use
// [Checker], which replays segments in the order they were found and
// records every [Violation] instead of stopping at the first:
//
//   - [HashMismatch]: committed segment hash differs from the bytes present
//   - [Gap]: an index was skipped
//   - [OutOfOrder]: an index arrived that is smaller than expected or repeated
//   - [UnexpectedEnd]: the container ended mid-record or without its final segment
//   - [ChainMismatch]: a replayed state differs from the committed one
//
// Index checks and chain replay always both run. They catch different
// things: indices localize the problem, the chain proves it.
package chain
