// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/keys"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

type verifyParams struct {
	keyParams
	cli.JSONOutput
	PublicKey         string `json:"public_key"         flag:"public-key"         desc:"expected signing key: ed25519:<base64> or a device.pub path (default: the key directory's device.pub)"`
	Decrypt           bool   `json:"decrypt"            flag:"decrypt"            desc:"also decrypt archive chunks and check plaintext hashes (streams are always decrypted)"`
	Workers           int    `json:"workers"            flag:"workers"            desc:"per-segment check workers (overrides verify.workers)"`
	DurationTolerance string `json:"duration_tolerance" flag:"duration-tolerance" desc:"allowed excess of archive segment durations (overrides verify.duration_tolerance)"`
}

func verifyCommand() *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Check a container's signatures and continuity",
		Description: `Verify a stream file or archive directory against a signing identity.

The signature stage checks every segment manifest (stream) or the
detached manifest signature (archive). The continuity stage replays the
hash chain, reporting gaps, reordering, truncation, and tampered
segments. Stream segments are always decrypted and their plaintext
hashes compared, so verifying a stream needs the key directory and
passphrase. Archive chunks are decrypted only with --decrypt.

The exit code reports the outcome: 0 pass, 10 signature failure, 11
continuity or decryption failure, 12 malformed or unreadable container,
13 bad arguments, 14 internal error.`,
		Usage: "trustedge verify <path> [flags]",
		Examples: []cli.Example{
			{
				Description: "Verify with the local device key",
				Command:     "trustedge verify clip.trst",
			},
			{
				Description: "Verify an archive from another device, as JSON",
				Command:     "trustedge verify clip.trst.d --public-key cam-7.pub --json",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("verify takes exactly one container path (or - for a stream on stdin)")
			}
			report, err := runVerify(args[0], &params)
			if err != nil {
				return err
			}
			if params.OutputJSON {
				if err := cli.WriteJSON(report); err != nil {
					return err
				}
			} else {
				printReport(os.Stdout, args[0], report)
			}
			if code := report.ExitCode(); code != verify.ExitOK {
				return &cli.ExitError{Code: code}
			}
			return nil
		},
	}
}

func runVerify(path string, params *verifyParams) (*verify.Report, error) {
	session, err := params.load("verify")
	if err != nil {
		return nil, err
	}
	options := verify.Options{
		Workers: session.config.Verify.Workers,
		Logger:  session.logger,
	}
	if params.Workers != 0 {
		options.Workers = params.Workers
	}
	if params.DurationTolerance != "" {
		session.config.Verify.DurationTolerance = params.DurationTolerance
	}
	options.DurationTolerance, err = session.config.DurationTolerance()
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}

	decrypt := params.Decrypt || isStream(path)
	var backend keys.Backend
	if params.PublicKey == "" || decrypt {
		backend, err = session.openBackend()
		if err != nil {
			return nil, exitError(err)
		}
		defer backend.Close()
	}

	options.PublicKey, err = verifyingKey(params.PublicKey, backend)
	if err != nil {
		return nil, err
	}
	if decrypt {
		options.Keys = backend.SymmetricKey
	}

	verifier, err := verify.New(options)
	if err != nil {
		return nil, exitError(err)
	}
	if path == "-" {
		return verifier.Stream(os.Stdin), nil
	}
	return verifier.Path(path), nil
}

// isStream reports whether path names a stream container. A path that
// cannot be stat'd is left for the verifier to report.
func isStream(path string) bool {
	if path == "-" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// verifyingKey resolves --public-key, falling back to the backend's
// device key.
func verifyingKey(identifier string, backend keys.Backend) (ed25519.PublicKey, error) {
	if identifier != "" {
		publicKey, err := keys.ResolveVerifyingKey(identifier)
		if err != nil {
			return nil, cli.UsageErrorf("--public-key: %v", err)
		}
		return publicKey, nil
	}
	publicKey, err := backend.VerifyingKey(keys.DeviceKey)
	if err != nil {
		return nil, cli.UsageErrorf("no verifying key (pass --public-key or run keygen): %v", err)
	}
	return publicKey, nil
}

func printReport(w io.Writer, path string, report *verify.Report) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "container:\t%s (%s)\n", path, report.Variant)
	if report.DeviceID != "" {
		fmt.Fprintf(tw, "device:\t%s\n", report.DeviceID)
	}
	if report.Profile != "" {
		fmt.Fprintf(tw, "profile:\t%s\n", report.Profile)
	}
	fmt.Fprintf(tw, "signature:\t%s\n", report.Signature)
	fmt.Fprintf(tw, "continuity:\t%s\n", report.Continuity)
	fmt.Fprintf(tw, "segments:\t%d\n", report.Segments)
	if report.DurationSeconds > 0 {
		fmt.Fprintf(tw, "duration:\t%.3fs\n", report.DurationSeconds)
	}
	if report.FirstGapIndex != nil {
		fmt.Fprintf(tw, "first gap:\t%d\n", *report.FirstGapIndex)
	}
	if report.OutOfOrder != nil {
		fmt.Fprintf(tw, "out of order:\texpected %d, found %d\n", report.OutOfOrder.Expected, report.OutOfOrder.Found)
	}
	fmt.Fprintf(tw, "class:\t%s\n", report.Class)
	fmt.Fprintf(tw, "time:\t%s\n", time.Duration(report.VerifyTimeMillis)*time.Millisecond)
	tw.Flush()

	for _, failure := range report.Failures {
		if failure.Index != nil {
			fmt.Fprintf(w, "  %s [%d]: %s\n", failure.Kind, *failure.Index, failure.Detail)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", failure.Kind, failure.Detail)
		}
	}
}
