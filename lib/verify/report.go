// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"errors"
	"io/fs"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
)

// Status is the outcome of the signature or continuity stage.
type Status string

const (
	Pass    Status = "pass"
	Fail    Status = "fail"
	Skip    Status = "skip"
	Unknown Status = "unknown"
)

// Class is the single category a verification outcome falls into.
type Class string

const (
	ClassNone       Class = "none"
	ClassFormat     Class = "format"
	ClassIO         Class = "io"
	ClassSignature  Class = "signature"
	ClassContinuity Class = "continuity"
	ClassAEAD       Class = "aead"
	ClassInternal   Class = "internal"
)

// Process exit codes for each outcome. ExitUsage is not produced by
// this package; command-line front ends use it for bad arguments.
const (
	ExitOK         = 0
	ExitSignature  = 10
	ExitContinuity = 11
	ExitStructural = 12
	ExitUsage      = 13
	ExitInternal   = 14
)

// Variant names the container layout.
type Variant string

const (
	VariantStream  Variant = "stream"
	VariantArchive Variant = "archive"
)

// OutOfOrder locates the first reordered segment.
type OutOfOrder struct {
	Expected uint64 `json:"expected"`
	Found    uint64 `json:"found"`
}

// Failure is one problem found during verification.
type Failure struct {
	Kind   string  `json:"kind"`
	Index  *uint64 `json:"index,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

// Report is the outcome of verifying one container.
type Report struct {
	Signature        Status      `json:"signature"`
	Continuity       Status      `json:"continuity"`
	Segments         uint64      `json:"segments"`
	DurationSeconds  float64     `json:"duration_s"`
	FirstGapIndex    *uint64     `json:"first_gap_index,omitempty"`
	OutOfOrder       *OutOfOrder `json:"out_of_order,omitempty"`
	Error            string      `json:"error,omitempty"`
	VerifyTimeMillis int64       `json:"verify_time_ms"`
	Class            Class       `json:"class"`
	Variant          Variant     `json:"variant"`
	Profile          string      `json:"profile,omitempty"`
	DeviceID         string      `json:"device_id,omitempty"`
	Failures         []Failure   `json:"failures"`
}

func newReport(variant Variant) *Report {
	return &Report{
		Signature:  Unknown,
		Continuity: Unknown,
		Class:      ClassNone,
		Variant:    variant,
		Failures:   []Failure{},
	}
}

// OK reports whether both stages passed.
func (r *Report) OK() bool {
	return r.Signature == Pass && r.Continuity == Pass
}

// ExitCode maps the report class to a process exit code.
func (r *Report) ExitCode() int {
	return r.Class.ExitCode()
}

// ExitCode returns the process exit code for an outcome of class c.
func (c Class) ExitCode() int {
	switch c {
	case ClassNone:
		return ExitOK
	case ClassSignature:
		return ExitSignature
	case ClassContinuity, ClassAEAD:
		return ExitContinuity
	case ClassFormat, ClassIO:
		return ExitStructural
	default:
		return ExitInternal
	}
}

// structural ends verification before the signature stage. A record
// truncation with nothing before it is a malformed container, not a
// broken chain.
func (r *Report) structural(err error) {
	r.Signature = Unknown
	r.Continuity = Unknown
	r.Class = Classify(err)
	switch r.Class {
	case ClassContinuity, ClassSignature, ClassAEAD, ClassNone:
		r.Class = ClassFormat
	}
	r.Error = err.Error()
	r.Failures = append(r.Failures, Failure{Kind: string(r.Class), Detail: err.Error()})
}

// signatureFailed ends verification at the signature stage.
func (r *Report) signatureFailed(err error, index *uint64) {
	r.Signature = Fail
	r.Continuity = Skip
	r.Class = ClassSignature
	r.Error = err.Error()
	r.Failures = append(r.Failures, Failure{Kind: "signature", Index: index, Detail: err.Error()})
}

// addViolations records continuity violations and sets the location
// fields from the checker.
func (r *Report) addViolations(checker *chain.Checker) {
	for _, violation := range checker.Violations() {
		index := violation.Index
		r.Failures = append(r.Failures, Failure{Kind: violation.Kind.String(), Index: &index, Detail: violation.Error()})
	}
	if gap, found := checker.FirstGap(); found {
		r.FirstGapIndex = &gap
	}
	if violation, found := checker.FirstOutOfOrder(); found {
		r.OutOfOrder = &OutOfOrder{Expected: violation.Expected, Found: violation.Found}
	}
}

// Classify maps an error from any container package to a report
// class.
func Classify(err error) Class {
	var violation *chain.Violation
	var formatError *format.Error
	var pathError *fs.PathError
	switch {
	case err == nil:
		return ClassNone
	case errors.As(err, &violation):
		return ClassContinuity
	case errors.Is(err, manifest.ErrSignature), errors.Is(err, stream.ErrBinding):
		return ClassSignature
	case errors.Is(err, segcipher.ErrAuth), errors.Is(err, segcipher.ErrNonceMismatch), errors.Is(err, stream.ErrPlaintextHash):
		return ClassAEAD
	case format.IsRecordTruncation(err):
		return ClassContinuity
	case errors.As(err, &formatError), errors.Is(err, manifest.ErrInvalid), errors.Is(err, segcipher.ErrUnknownAlgorithm), errors.Is(err, stream.ErrEmpty):
		return ClassFormat
	case errors.As(err, &pathError), errors.Is(err, fs.ErrNotExist):
		return ClassIO
	default:
		return ClassInternal
	}
}
