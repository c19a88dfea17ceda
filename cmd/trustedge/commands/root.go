// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/version"
)

// Root builds and returns the complete trustedge command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "trustedge",
		Description: `TrustEdge: signed, encrypted, continuity-checked capture containers.

A container holds a recording split into segments. Every segment is
encrypted, hashed into a continuity chain, and signed by the capturing
device, so a verifier can prove who captured it and that nothing was
removed, reordered, or altered.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			wrapCommand(),
			verifyCommand(),
			unwrapCommand(),
			inspectCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Create device keys",
				Command:     "trustedge keygen --passphrase-file ~/.trustedge/passphrase",
			},
			{
				Description: "Wrap a recording",
				Command:     "trustedge wrap clip.mp4 --out clip.trst --device-id cam-7",
			},
			{
				Description: "Verify it",
				Command:     "trustedge verify clip.trst",
			},
		},
	}
}

func versionCommand() *cli.Command {
	var params cli.JSONOutput

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Params:  func() any { return &params },
		Run: func(args []string) error {
			if done, err := params.EmitJSON(version.Current()); done {
				return err
			}
			fmt.Printf("trustedge %s\n", version.Full())
			return nil
		},
	}
}
