// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/archive"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

type unwrapParams struct {
	keyParams
	cli.JSONOutput
	Output    string `json:"out"        flag:"out,o"      desc:"plaintext output path (- for stdout)"`
	PublicKey string `json:"public_key" flag:"public-key" desc:"expected signing key: ed25519:<base64> or a device.pub path (default: the key directory's device.pub)"`
	DeviceID  string `json:"device_id"  flag:"device-id"  desc:"require the container to name this device"`
}

type unwrapResult struct {
	Variant        verify.Variant `json:"variant"`
	Output         string         `json:"out"`
	Segments       uint64         `json:"segments"`
	PlaintextBytes uint64         `json:"plaintext_bytes"`
	ChainTip       digest.Digest  `json:"chain_tip"`
}

func unwrapCommand() *cli.Command {
	var params unwrapParams

	return &cli.Command{
		Name:    "unwrap",
		Summary: "Verify a container and recover its plaintext",
		Description: `Verify a stream file or archive directory and write the decrypted
plaintext. Unlike verify, unwrap stops at the first problem of any
kind. Output goes to a temporary file that is renamed into place only
after the whole container has verified, so a failed unwrap never
leaves partial plaintext at the destination (except with --out -).

Exit codes follow verify: 10 signature, 11 continuity or decryption,
12 malformed or unreadable container.`,
		Usage: "trustedge unwrap <path> --out <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Recover a recording",
				Command:     "trustedge unwrap clip.trst --out clip.mp4 --passphrase-file ~/.trustedge/passphrase",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("unwrap takes exactly one container path (or - for a stream on stdin)")
			}
			if params.Output == "" {
				return cli.UsageErrorf("--out is required")
			}
			result, err := runUnwrap(args[0], &params)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			if result.Output != "-" {
				fmt.Printf("Recovered %d bytes from %d segments into %s\n", result.PlaintextBytes, result.Segments, result.Output)
			}
			return nil
		},
	}
}

func runUnwrap(path string, params *unwrapParams) (*unwrapResult, error) {
	session, err := params.load("unwrap")
	if err != nil {
		return nil, err
	}
	backend, err := session.openBackend()
	if err != nil {
		return nil, exitError(err)
	}
	defer backend.Close()
	publicKey, err := verifyingKey(params.PublicKey, backend)
	if err != nil {
		return nil, err
	}

	isArchive := false
	if path != "-" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, exitError(err)
		}
		isArchive = info.IsDir()
	}

	if isArchive && params.DeviceID != "" {
		container, err := archive.Load(path)
		if err != nil {
			return nil, exitError(err)
		}
		if container.Manifest.Device.ID != params.DeviceID {
			return nil, exitError(fmt.Errorf("%w: archive names device %q, want %q", stream.ErrBinding, container.Manifest.Device.ID, params.DeviceID))
		}
	}

	output, err := createAtomic(params.Output)
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	result := &unwrapResult{Output: params.Output}

	if isArchive {
		summary, err := archive.Unwrap(output, path, publicKey, backend.SymmetricKey, archive.UnwrapOptions{Logger: session.logger})
		if err != nil {
			output.Abort()
			return nil, exitError(err)
		}
		result.Variant = verify.VariantArchive
		result.Segments = summary.Segments
		result.PlaintextBytes = summary.PlaintextBytes
		result.ChainTip = summary.ChainTip
	} else {
		source, err := openInput(path)
		if err != nil {
			output.Abort()
			return nil, exitError(err)
		}
		defer source.Close()
		summary, err := stream.Unwrap(output, source, publicKey, backend.SymmetricKey, stream.UnwrapOptions{
			DeviceID: params.DeviceID,
			Logger:   session.logger,
		})
		if err != nil {
			output.Abort()
			return nil, exitError(err)
		}
		result.Variant = verify.VariantStream
		result.Segments = summary.Segments
		result.PlaintextBytes = summary.PlaintextBytes
		result.ChainTip = summary.ChainTip
	}

	if err := output.Commit(); err != nil {
		return nil, exitError(err)
	}
	return result, nil
}
