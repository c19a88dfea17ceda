// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitUsage is the exit code for invalid arguments and flags.
const ExitUsage = 13

// ExitCoder is implemented by errors that carry a process exit code.
// The main function checks for it on returned errors.
type ExitCoder interface {
	ExitCode() int
}

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, the CLI
// framework exits with the specified code without printing the error
// string; the command is expected to have already written its own
// output.
//
// This is useful for commands where a non-zero exit is a valid
// outcome, such as "verify" reporting a failed container after it
// has printed the report.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// CodedError is an error that should be printed and then exit with
// Code.
type CodedError struct {
	Code int
	Err  error
}

func (e *CodedError) Error() string {
	return e.Err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code.
func (e *CodedError) ExitCode() int {
	return e.Code
}

// UsageErrorf returns a CodedError with ExitUsage.
func UsageErrorf(format string, args ...any) error {
	return &CodedError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}
