// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the trustedge command tree: keygen, wrap,
// verify, unwrap, inspect, and version.
//
// Every command that touches keys shares one flag group (--config,
// --key-dir, --backend, --passphrase-file). Flags override the loaded
// configuration, which in turn overrides built-in defaults.
//
// Failures are returned as [cli.CodedError] values whose exit code
// follows the verification report classes: 10 for signature problems,
// 11 for continuity and AEAD problems, 12 for malformed or unreadable
// containers, 13 for bad arguments, and 14 for everything else.
// "verify" prints its report and returns a silent [cli.ExitError]
// carrying the report's exit code.
package commands
