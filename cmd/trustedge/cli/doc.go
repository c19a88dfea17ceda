// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the trustedge
// CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory (or a
// tagged params struct via [Command.Params]), and a Run function.
// Commands are assembled into a tree in cmd/trustedge/commands and
// dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Errors carry process exit codes through the [ExitCoder] interface:
// [ExitError] for a code with no message, [CodedError] for a message
// plus a code. Argument and flag problems are reported as [ExitUsage].
package cli
