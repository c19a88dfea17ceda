// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"
	"math"
	"testing"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
)

func segmentHashes(n int) []digest.Digest {
	hashes := make([]digest.Digest, n)
	for i := range hashes {
		hashes[i] = digest.HashSegment([]byte(fmt.Sprintf("segment %d", i)))
	}
	return hashes
}

var seed = digest.HashHeader([]byte("header"))

func TestChainAppendReturnsPrevious(t *testing.T) {
	hashes := segmentHashes(3)
	c := New(seed)

	if previous := c.Append(hashes[0]); previous != Genesis(seed) {
		t.Error("first Append did not return genesis")
	}
	afterFirst := c.State()
	if previous := c.Append(hashes[1]); previous != afterFirst {
		t.Error("second Append did not return the state after the first")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if afterFirst != Next(Genesis(seed), hashes[0]) {
		t.Error("state after first append is not Next(genesis, hash)")
	}
}

func TestComputeDependsOnOrderAndSeed(t *testing.T) {
	hashes := segmentHashes(4)
	tip := Compute(seed, hashes)

	swapped := append([]digest.Digest(nil), hashes...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	if Compute(seed, swapped) == tip {
		t.Error("reordering did not change the tip")
	}
	if Compute(seed, hashes[:3]) == tip {
		t.Error("truncation did not change the tip")
	}
	if Compute(digest.HashHeader([]byte("other")), hashes) == tip {
		t.Error("different seed produced the same tip")
	}
	if Genesis(seed) == seed {
		t.Error("genesis equals raw seed")
	}
}

func observeAll(checker *Checker, indices []uint64, hashes []digest.Digest) {
	for _, index := range indices {
		checker.Observe(Observation{Index: index, Stored: hashes[index], Recomputed: hashes[index]})
	}
}

func TestCheckerClean(t *testing.T) {
	hashes := segmentHashes(5)
	checker := NewChecker(seed)
	observeAll(checker, []uint64{0, 1, 2, 3}, hashes)
	checker.CommitTip(4, Compute(seed, hashes[:4]))
	observeAll(checker, []uint64{4}, hashes)
	checker.Finish(true, true)

	if !checker.OK() {
		t.Fatalf("clean replay reported %v", checker.Violations())
	}
	if checker.Observed() != 5 {
		t.Errorf("Observed = %d, want 5", checker.Observed())
	}
	if checker.State() != Compute(seed, hashes) {
		t.Error("replayed state differs from Compute")
	}
}

func TestCheckerViolations(t *testing.T) {
	hashes := segmentHashes(6)

	tests := []struct {
		name    string
		indices []uint64
		clean   bool
		final   bool
		want    []Kind
	}{
		{"gap", []uint64{0, 1, 3, 4}, true, true, []Kind{Gap}},
		{"out of order", []uint64{0, 2, 1}, true, true, []Kind{Gap, OutOfOrder}},
		{"repeated", []uint64{0, 1, 1, 2}, true, true, []Kind{OutOfOrder}},
		{"truncated mid-record", []uint64{0, 1}, false, false, []Kind{UnexpectedEnd}},
		{"missing final", []uint64{0, 1, 2}, true, false, []Kind{UnexpectedEnd}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			checker := NewChecker(seed)
			observeAll(checker, test.indices, hashes)
			checker.Finish(test.clean, test.final)

			violations := checker.Violations()
			if len(violations) != len(test.want) {
				t.Fatalf("violations = %v, want kinds %v", violations, test.want)
			}
			for i, kind := range test.want {
				if violations[i].Kind != kind {
					t.Errorf("violation %d = %v, want %v", i, violations[i].Kind, kind)
				}
			}
		})
	}
}

func TestCheckerGapAndOutOfOrderDetail(t *testing.T) {
	hashes := segmentHashes(4)
	checker := NewChecker(seed)
	observeAll(checker, []uint64{0, 2, 1}, hashes)

	at, ok := checker.FirstGap()
	if !ok || at != 1 {
		t.Errorf("FirstGap = %d, %v; want 1, true", at, ok)
	}
	violation, ok := checker.FirstOutOfOrder()
	if !ok {
		t.Fatal("no OutOfOrder violation")
	}
	if violation.Expected != 3 || violation.Found != 1 {
		t.Errorf("OutOfOrder = {expected %d, found %d}, want {3, 1}", violation.Expected, violation.Found)
	}
}

func TestCheckerLastIndexDoesNotWrap(t *testing.T) {
	hashes := segmentHashes(3)
	checker := NewChecker(seed)
	checker.Observe(Observation{Index: 0, Stored: hashes[0], Recomputed: hashes[0]})
	checker.Observe(Observation{Index: math.MaxUint64, Stored: hashes[1], Recomputed: hashes[1]})
	checker.Observe(Observation{Index: 0, Stored: hashes[2], Recomputed: hashes[2]})

	violations := checker.Violations()
	if len(violations) != 2 {
		t.Fatalf("violations = %v, want Gap then OutOfOrder", violations)
	}
	if violations[0].Kind != Gap || violations[0].Index != 1 {
		t.Errorf("first violation = %v, want Gap at 1", violations[0])
	}
	if violations[1].Kind != OutOfOrder || violations[1].Found != 0 || violations[1].Expected != math.MaxUint64 {
		t.Errorf("second violation = %+v, want OutOfOrder found 0 after the last index", violations[1])
	}
	if gap, _ := checker.FirstGap(); gap != 1 {
		t.Errorf("FirstGap = %d, want 1", gap)
	}
}

func TestCheckerHashMismatch(t *testing.T) {
	hashes := segmentHashes(3)
	checker := NewChecker(seed)
	checker.Observe(Observation{Index: 0, Stored: hashes[0], Recomputed: hashes[0]})
	checker.Observe(Observation{Index: 1, Stored: hashes[1], Recomputed: hashes[2]})
	checker.Observe(Observation{Index: 2, Stored: hashes[2], Recomputed: hashes[2]})
	checker.CommitTip(2, Compute(seed, hashes))
	checker.Finish(true, true)

	violations := checker.Violations()
	if len(violations) != 1 || violations[0].Kind != HashMismatch || violations[0].Index != 1 {
		t.Fatalf("violations = %v, want one HashMismatch at 1", violations)
	}
}

func TestCheckerPreviousState(t *testing.T) {
	hashes := segmentHashes(2)
	good := Genesis(seed)
	bad := digest.HashChainSeed([]byte("placeholder"))

	checker := NewChecker(seed)
	checker.Observe(Observation{Index: 0, Stored: hashes[0], Recomputed: hashes[0], Previous: &good})
	checker.Observe(Observation{Index: 1, Stored: hashes[1], Recomputed: hashes[1], Previous: &bad})

	violations := checker.Violations()
	if len(violations) != 1 || violations[0].Kind != ChainMismatch || violations[0].Index != 1 {
		t.Fatalf("violations = %v, want one ChainMismatch at 1", violations)
	}
}

func TestCheckerTipMismatch(t *testing.T) {
	hashes := segmentHashes(3)
	checker := NewChecker(seed)
	observeAll(checker, []uint64{0, 1, 2}, hashes)
	checker.CommitTip(2, Compute(seed, hashes[:2]))

	violations := checker.Violations()
	if len(violations) != 1 || violations[0].Kind != ChainMismatch {
		t.Fatalf("violations = %v, want ChainMismatch", violations)
	}
}

func TestViolationError(t *testing.T) {
	v := &Violation{Kind: OutOfOrder, Expected: 3, Found: 1}
	if v.Error() != "chain: out of order: expected index 3, found 1" {
		t.Errorf("Error() = %q", v.Error())
	}
}
