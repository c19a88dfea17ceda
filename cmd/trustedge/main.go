// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/commands"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

func main() {
	if err := run(); err != nil {
		// verify prints its own report and returns an ExitError with
		// the report's code. Don't print a redundant "error:" line.
		var silent *cli.ExitError
		if errors.As(err, &silent) {
			os.Exit(silent.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder cli.ExitCoder
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(verify.ExitInternal)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
