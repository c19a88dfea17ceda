// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"errors"
	"fmt"
)

// Kind classifies a structural error.
type Kind int

const (
	BadMagic Kind = iota + 1
	UnsupportedVersion
	Truncated
	SchemaInvalid
)

func (k Kind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case UnsupportedVersion:
		return "unsupported version"
	case Truncated:
		return "truncated"
	case SchemaInvalid:
		return "schema invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrBadMagic           = errors.New("format: bad magic")
	ErrUnsupportedVersion = errors.New("format: unsupported version")
	ErrTruncated          = errors.New("format: truncated")
	ErrSchemaInvalid      = errors.New("format: schema invalid")
)

// HeaderRecord is the Record value of errors located in the preamble.
const HeaderRecord = -1

// Error is a structural error with its location.
type Error struct {
	Kind Kind

	// Offset is the stream byte offset where the failing item starts.
	Offset int64

	// Record is the zero-based record index, or HeaderRecord.
	Record int64

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	where := "header"
	if e.Record != HeaderRecord {
		where = fmt.Sprintf("record %d", e.Record)
	}
	message := fmt.Sprintf("format: %s in %s at offset %d", e.Kind, where, e.Offset)
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case BadMagic:
		return target == ErrBadMagic
	case UnsupportedVersion:
		return target == ErrUnsupportedVersion
	case Truncated:
		return target == ErrTruncated
	case SchemaInvalid:
		return target == ErrSchemaInvalid
	}
	return false
}

// IsRecordTruncation reports whether err is a truncation inside a
// record, as opposed to inside the header.
func IsRecordTruncation(err error) bool {
	var formatError *Error
	return errors.As(err, &formatError) && formatError.Kind == Truncated && formatError.Record != HeaderRecord
}
