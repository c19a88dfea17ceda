// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"
	"math"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
)

// Kind classifies a continuity violation.
type Kind int

const (
	HashMismatch Kind = iota + 1
	Gap
	OutOfOrder
	UnexpectedEnd
	ChainMismatch
)

func (k Kind) String() string {
	switch k {
	case HashMismatch:
		return "hash_mismatch"
	case Gap:
		return "gap"
	case OutOfOrder:
		return "out_of_order"
	case UnexpectedEnd:
		return "unexpected_end"
	case ChainMismatch:
		return "chain_mismatch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Violation is one continuity failure. Index is the segment index the
// violation was detected at; for Gap it is the first missing index.
// Expected and Found are set for OutOfOrder.
type Violation struct {
	Kind     Kind
	Index    uint64
	Expected uint64
	Found    uint64
	Detail   string
}

func (v *Violation) Error() string {
	switch v.Kind {
	case OutOfOrder:
		return fmt.Sprintf("chain: out of order: expected index %d, found %d", v.Expected, v.Found)
	case Gap:
		return fmt.Sprintf("chain: gap at index %d", v.Index)
	default:
		message := fmt.Sprintf("chain: %s at index %d", v.Kind, v.Index)
		if v.Detail != "" {
			message += ": " + v.Detail
		}
		return message
	}
}

// Observation is one segment as found by a verifier.
type Observation struct {
	// Index is the segment index as recorded in the container.
	Index uint64

	// Stored is the segment hash committed to by signed metadata.
	Stored digest.Digest

	// Recomputed is the hash of the segment bytes actually present.
	Recomputed digest.Digest

	// Previous is the committed chain state before this segment, for
	// formats that record it per segment. Nil otherwise.
	Previous *State
}

// Checker replays a container's chain and collects violations. It is
// not safe for concurrent use; observations must arrive in encounter
// order.
type Checker struct {
	state    State
	expected uint64

	// exhausted is set once index math.MaxUint64 is observed; no later
	// index can be in order.
	exhausted bool

	observed   uint64
	violations []Violation
}

// NewChecker returns a Checker positioned at Genesis(seed).
func NewChecker(seed digest.Digest) *Checker {
	return &Checker{state: Genesis(seed)}
}

// Observe replays one segment. The chain advances over the stored
// hash, so one altered segment reports a HashMismatch without also
// breaking every later state.
func (c *Checker) Observe(observation Observation) {
	index := observation.Index

	switch {
	case c.exhausted:
		c.add(Violation{Kind: OutOfOrder, Index: index, Expected: c.expected, Found: index})
	case index == c.expected:
		c.advance(index)
	case index > c.expected:
		c.add(Violation{Kind: Gap, Index: c.expected})
		c.advance(index)
	default:
		c.add(Violation{Kind: OutOfOrder, Index: index, Expected: c.expected, Found: index})
	}

	if !digest.Equal(observation.Stored, observation.Recomputed) {
		c.add(Violation{Kind: HashMismatch, Index: index})
	}

	if observation.Previous != nil && !digest.Equal(*observation.Previous, c.state) {
		c.add(Violation{Kind: ChainMismatch, Index: index, Detail: "recorded previous state differs from replay"})
	}

	c.state = Next(c.state, observation.Stored)
	c.observed++
}

// advance moves the expected index past index without wrapping.
func (c *Checker) advance(index uint64) {
	if index == math.MaxUint64 {
		c.expected = math.MaxUint64
		c.exhausted = true
		return
	}
	c.expected = index + 1
}

// CommitTip compares the replayed state with a committed tip. index
// names where the tip was found, for reporting.
func (c *Checker) CommitTip(index uint64, committed State) {
	if !digest.Equal(committed, c.state) {
		c.add(Violation{Kind: ChainMismatch, Index: index, Detail: "chain tip differs from replay"})
	}
}

// Finish closes the replay. clean is false when the container ended
// inside a record; terminated is false when no chain-terminating
// segment was seen. Either yields UnexpectedEnd.
func (c *Checker) Finish(clean, terminated bool) {
	switch {
	case !clean:
		c.add(Violation{Kind: UnexpectedEnd, Index: c.expected, Detail: "container ends inside a record"})
	case !terminated:
		c.add(Violation{Kind: UnexpectedEnd, Index: c.expected, Detail: "no final segment"})
	}
}

// Add records an externally detected violation, such as a duration
// overrun, so it is reported alongside replay violations.
func (c *Checker) Add(violation Violation) {
	c.add(violation)
}

func (c *Checker) add(violation Violation) {
	c.violations = append(c.violations, violation)
}

// State returns the replayed chain state.
func (c *Checker) State() State {
	return c.state
}

// Observed returns the number of segments observed.
func (c *Checker) Observed() uint64 {
	return c.observed
}

// Violations returns every violation in detection order.
func (c *Checker) Violations() []Violation {
	return c.violations
}

// OK reports whether no violation was recorded.
func (c *Checker) OK() bool {
	return len(c.violations) == 0
}

// FirstGap returns the first missing index, if any gap was found.
func (c *Checker) FirstGap() (uint64, bool) {
	return c.first(Gap)
}

// FirstOutOfOrder returns the first OutOfOrder violation, if any.
func (c *Checker) FirstOutOfOrder() (Violation, bool) {
	for _, v := range c.violations {
		if v.Kind == OutOfOrder {
			return v, true
		}
	}
	return Violation{}, false
}

func (c *Checker) first(kind Kind) (uint64, bool) {
	for _, v := range c.violations {
		if v.Kind == kind {
			return v.Index, true
		}
	}
	return 0, false
}
