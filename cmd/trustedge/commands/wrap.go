// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/archive"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/keys"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

type wrapParams struct {
	keyParams
	cli.JSONOutput
	Output        string `json:"out"            flag:"out,o"          desc:"output container path (- for stdout, stream only)"`
	Archive       bool   `json:"archive"        flag:"archive"        desc:"write an archive directory instead of a stream file"`
	DeviceID      string `json:"device_id"      flag:"device-id"      desc:"capture device identity (required)"`
	DeviceModel   string `json:"device_model"   flag:"device-model"   desc:"device model recorded in archive manifests"`
	Firmware      string `json:"firmware"       flag:"firmware"       desc:"device firmware version recorded in archive manifests"`
	Profile       string `json:"profile"        flag:"profile"        desc:"capture profile (overrides wrap.profile)"`
	ChunkSize     int    `json:"chunk_size"     flag:"chunk-size"     desc:"plaintext bytes per segment (overrides wrap.chunk_size)"`
	Algorithm     string `json:"algorithm"      flag:"algorithm"      desc:"chacha20-poly1305 or aes-256-gcm (overrides wrap.algorithm)"`
	ChunkDuration string `json:"chunk_duration" flag:"chunk-duration" desc:"nominal capture time per archive segment (overrides wrap.chunk_duration)"`
	Claims        string `json:"claims"         flag:"claims"         desc:"JSON or JSONC file of capture claims to sign into the container"`
	Workers       int    `json:"workers"        flag:"workers"        desc:"sealing workers (overrides wrap.workers)"`
}

type wrapResult struct {
	Variant         verify.Variant `json:"variant"`
	Output          string         `json:"out"`
	Segments        uint64         `json:"segments"`
	PlaintextBytes  uint64         `json:"plaintext_bytes,omitempty"`
	DurationSeconds float64        `json:"duration_s,omitempty"`
	KeyID           format.KeyID   `json:"key_id"`
	HeaderHash      digest.Digest  `json:"header_hash"`
	ChainTip        digest.Digest  `json:"chain_tip"`
}

func wrapCommand() *cli.Command {
	var params wrapParams

	return &cli.Command{
		Name:    "wrap",
		Summary: "Seal plaintext into a signed trust container",
		Description: `Split the input into segments, encrypt each one under a key derived
from the backend's master secret, chain the ciphertext hashes, and sign
every segment manifest with the device key.

By default the output is a single stream file. With --archive the
output is a directory holding manifest.json, chunks/, and a detached
signature; it is built in a temporary directory and renamed into
place, so a failed wrap leaves nothing behind.

The input is a file path or - for stdin.`,
		Usage: "trustedge wrap <input> --out <path> --device-id <id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Wrap a recording as a stream file",
				Command:     "trustedge wrap clip.mp4 --out clip.trst --device-id cam-7",
			},
			{
				Description: "Wrap a recording as an archive with signed claims",
				Command:     "trustedge wrap clip.mp4 --archive --out clip.trst.d --device-id cam-7 --profile cam.video --claims claims.jsonc",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("wrap takes exactly one input path (or -)")
			}
			if params.Output == "" {
				return cli.UsageErrorf("--out is required")
			}
			if params.DeviceID == "" {
				return cli.UsageErrorf("--device-id is required")
			}
			if params.Archive && params.Output == "-" {
				return cli.UsageErrorf("--archive needs a directory path for --out")
			}
			result, err := runWrap(args[0], &params)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			if result.Output != "-" {
				fmt.Printf("Wrapped %d segments into %s (%s)\n", result.Segments, result.Output, result.Variant)
				fmt.Printf("Chain tip: %s\n", result.ChainTip)
			}
			return nil
		},
	}
}

func runWrap(input string, params *wrapParams) (*wrapResult, error) {
	session, err := params.load("wrap")
	if err != nil {
		return nil, err
	}
	wrap := session.config.Wrap
	if params.Profile != "" {
		wrap.Profile = params.Profile
	}
	if params.ChunkSize != 0 {
		wrap.ChunkSize = params.ChunkSize
	}
	if params.Algorithm != "" {
		wrap.Algorithm = params.Algorithm
	}
	if params.ChunkDuration != "" {
		wrap.ChunkDuration = params.ChunkDuration
	}
	if params.Workers != 0 {
		wrap.Workers = params.Workers
	}
	session.config.Wrap = wrap
	if err := session.config.Validate(); err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	algorithm, err := segcipher.ParseAlgorithm(wrap.Algorithm)
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	chunkDuration, err := session.config.ChunkDuration()
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}

	var claims map[string]any
	if params.Claims != "" {
		claims, err = archive.LoadClaims(params.Claims)
		if err != nil {
			return nil, cli.UsageErrorf("%v", err)
		}
	}

	backend, err := session.openBackend()
	if err != nil {
		return nil, exitError(err)
	}
	defer backend.Close()
	signer, err := backend.SigningKey(keys.DeviceKey)
	if err != nil {
		return nil, exitError(err)
	}
	keyID := format.NewKeyID()
	key, err := backend.SymmetricKey(keyID)
	if err != nil {
		return nil, exitError(err)
	}
	defer key.Close()

	source, err := openInput(input)
	if err != nil {
		return nil, exitError(err)
	}
	defer source.Close()

	logger := session.logger.With("device_id", params.DeviceID, "key_id", keyID.String())

	if params.Archive {
		written, err := archive.Write(params.Output, source, signer, key, archive.Options{
			Algorithm:     algorithm,
			ChunkSize:     wrap.ChunkSize,
			ChunkDuration: chunkDuration,
			Profile:       wrap.Profile,
			Device: manifest.Device{
				ID:              params.DeviceID,
				Model:           params.DeviceModel,
				FirmwareVersion: params.Firmware,
			},
			KeyID:   keyID,
			Claims:  claims,
			Workers: wrap.Workers,
			Logger:  logger,
		})
		if err != nil {
			return nil, wrapFailure(err)
		}
		result := &wrapResult{
			Variant:    verify.VariantArchive,
			Output:     params.Output,
			Segments:   uint64(len(written.Segments)),
			KeyID:      keyID,
			HeaderHash: written.Header.Hash,
			ChainTip:   written.ChainTip,
		}
		for _, segment := range written.Segments {
			result.DurationSeconds += segment.DurationSeconds
		}
		return result, nil
	}

	metadata := map[string]any{
		"profile":   wrap.Profile,
		"device_id": params.DeviceID,
	}
	if claims != nil {
		metadata["claims"] = claims
	}
	output, err := createAtomic(params.Output)
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	summary, err := stream.Wrap(output, source, signer, key, stream.Options{
		Algorithm: algorithm,
		ChunkSize: wrap.ChunkSize,
		DeviceID:  params.DeviceID,
		KeyID:     keyID,
		Metadata:  metadata,
		Workers:   wrap.Workers,
		Logger:    logger,
	})
	if err != nil {
		output.Abort()
		return nil, wrapFailure(err)
	}
	if err := output.Commit(); err != nil {
		return nil, exitError(err)
	}
	return &wrapResult{
		Variant:        verify.VariantStream,
		Output:         params.Output,
		Segments:       summary.Segments,
		PlaintextBytes: summary.PlaintextBytes,
		KeyID:          keyID,
		HeaderHash:     summary.HeaderHash,
		ChainTip:       summary.ChainTip,
	}, nil
}

// wrapFailure reports caller mistakes as usage errors and everything
// else by class.
func wrapFailure(err error) error {
	switch {
	case errors.Is(err, stream.ErrEmpty), errors.Is(err, archive.ErrEmpty):
		return cli.UsageErrorf("input is empty")
	case errors.Is(err, archive.ErrExists):
		return cli.UsageErrorf("%v", err)
	}
	return exitError(err)
}
