// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/archive"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/codec"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

type inspectParams struct {
	cli.JSONOutput
	Records bool `json:"records" flag:"records" desc:"list every record or segment"`
	Diag    bool `json:"diag"    flag:"diag"    desc:"print each stream manifest in CBOR diagnostic notation"`
}

// headerInfo is the decoded container header.
type headerInfo struct {
	Version     uint8         `json:"version"`
	Algorithm   string        `json:"algorithm"`
	KeyID       format.KeyID  `json:"key_id"`
	DeviceHash  digest.Digest `json:"device_hash"`
	NoncePrefix string        `json:"nonce_prefix"`
	ChunkSize   uint32        `json:"chunk_size"`
	Hash        digest.Digest `json:"hash"`
}

// recordInfo describes one stream record as stored. Nothing in it has
// been verified.
type recordInfo struct {
	Sequence        uint64         `json:"sequence"`
	Offset          int64          `json:"offset"`
	ManifestBytes   int            `json:"manifest_bytes"`
	CiphertextBytes int            `json:"ciphertext_bytes"`
	PlaintextLength uint64         `json:"plaintext_length"`
	Timestamp       time.Time      `json:"timestamp"`
	Final           bool           `json:"final,omitempty"`
	ChainTip        *digest.Digest `json:"chain_tip,omitempty"`
	PublicKey       string         `json:"public_key"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Diagnostic      string         `json:"diagnostic,omitempty"`
}

type inspectResult struct {
	Variant  verify.Variant            `json:"variant"`
	Header   headerInfo                `json:"header"`
	Records  []recordInfo              `json:"records,omitempty"`
	Count    uint64                    `json:"count"`
	Error    string                    `json:"error,omitempty"`
	Manifest *manifest.Archive         `json:"manifest,omitempty"`
	Segments []manifest.ArchiveSegment `json:"-"`
}

func inspectCommand() *cli.Command {
	var params inspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a container's header and manifests without verifying",
		Description: `Decode a stream file or archive directory and print its header and
manifest contents. Inspect checks structure only: signatures, hashes,
and the chain are not verified, so use verify before trusting anything
shown here.

For a stream, inspect reads records until the end or the first
structural error, which is reported alongside the records read so far.`,
		Usage: "trustedge inspect <path> [flags]",
		Examples: []cli.Example{
			{
				Description: "Show every record of a stream with its CBOR manifest",
				Command:     "trustedge inspect clip.trst --records --diag",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("inspect takes exactly one container path")
			}
			info, err := os.Stat(args[0])
			if err != nil {
				return exitError(err)
			}
			var result *inspectResult
			if info.IsDir() {
				result, err = inspectArchive(args[0])
			} else {
				result, err = inspectStream(args[0], params.Diag)
			}
			if err != nil {
				return exitError(err)
			}
			if !params.Records {
				result.Records = nil
				if result.Manifest != nil {
					trimmed := *result.Manifest
					trimmed.Segments = nil
					result.Manifest = &trimmed
				}
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			printInspection(os.Stdout, result, params.Records)
			return nil
		},
	}
}

func newHeaderInfo(header format.Header) headerInfo {
	fields := manifest.NewArchiveHeader(header).Fields
	return headerInfo{
		Version:     fields.Version,
		Algorithm:   fields.Algorithm,
		KeyID:       fields.KeyID,
		DeviceHash:  fields.DeviceHash,
		NoncePrefix: fields.NoncePrefix,
		ChunkSize:   fields.ChunkSize,
		Hash:        header.Hash(),
	}
}

func inspectStream(path string, diagnose bool) (*inspectResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := format.NewReader(file)
	if err != nil {
		return nil, err
	}
	result := &inspectResult{
		Variant: verify.VariantStream,
		Header:  newHeaderInfo(reader.Header()),
		Records: []recordInfo{},
	}
	for {
		offset := reader.Offset()
		record, err := reader.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Error = err.Error()
			break
		}
		info := recordInfo{
			Sequence:        record.Sequence,
			Offset:          offset,
			ManifestBytes:   len(record.Manifest),
			CiphertextBytes: len(record.Ciphertext),
			PublicKey:       manifest.FormatPublicKey(record.PublicKey[:]),
		}
		if segment, err := manifest.DecodeSegment(record.Manifest); err == nil {
			info.PlaintextLength = segment.PlaintextLength
			info.Timestamp = time.UnixMilli(segment.TimestampMillis).UTC()
			info.Final = segment.Final
			info.ChainTip = segment.ChainTip
			info.Metadata = segment.Metadata
		} else if result.Error == "" {
			result.Error = fmt.Sprintf("record %d: %v", record.Sequence, err)
		}
		if diagnose {
			if diagnostic, err := codec.Diagnose(record.Manifest); err == nil {
				info.Diagnostic = diagnostic
			}
		}
		result.Records = append(result.Records, info)
		result.Count++
	}
	return result, nil
}

func inspectArchive(path string) (*inspectResult, error) {
	container, err := archive.Load(path)
	if err != nil {
		return nil, err
	}
	return &inspectResult{
		Variant:  verify.VariantArchive,
		Header:   newHeaderInfo(container.Header),
		Count:    uint64(len(container.Manifest.Segments)),
		Manifest: container.Manifest,
		Segments: container.Manifest.Segments,
	}, nil
}

func printInspection(w io.Writer, result *inspectResult, records bool) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "variant:\t%s\n", result.Variant)
	fmt.Fprintf(tw, "algorithm:\t%s\n", result.Header.Algorithm)
	fmt.Fprintf(tw, "key id:\t%s\n", result.Header.KeyID)
	fmt.Fprintf(tw, "device hash:\t%s\n", result.Header.DeviceHash)
	fmt.Fprintf(tw, "nonce prefix:\t%s\n", result.Header.NoncePrefix)
	fmt.Fprintf(tw, "chunk size:\t%d\n", result.Header.ChunkSize)
	fmt.Fprintf(tw, "header hash:\t%s\n", result.Header.Hash)
	if result.Manifest != nil {
		m := result.Manifest
		fmt.Fprintf(tw, "profile:\t%s\n", m.Profile)
		fmt.Fprintf(tw, "device:\t%s\n", m.Device.ID)
		fmt.Fprintf(tw, "public key:\t%s\n", m.Device.PublicKey)
		fmt.Fprintf(tw, "capture:\t%s to %s\n", m.Capture.StartedAt.Format(time.RFC3339), m.Capture.EndedAt.Format(time.RFC3339))
		fmt.Fprintf(tw, "chain tip:\t%s\n", m.ChainTip)
		if len(m.Claims) > 0 {
			fmt.Fprintf(tw, "claims:\t%d keys\n", len(m.Claims))
		}
	}
	fmt.Fprintf(tw, "segments:\t%d\n", result.Count)
	if result.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", result.Error)
	}
	tw.Flush()

	if !records {
		return
	}
	fmt.Fprintln(w)
	for _, record := range result.Records {
		final := ""
		if record.Final {
			final = " final"
		}
		fmt.Fprintf(w, "  #%d @%d  %d bytes ciphertext, %d bytes plaintext%s\n",
			record.Sequence, record.Offset, record.CiphertextBytes, record.PlaintextLength, final)
		if record.Diagnostic != "" {
			fmt.Fprintf(w, "      %s\n", record.Diagnostic)
		}
	}
	for _, segment := range result.Segments {
		fmt.Fprintf(w, "  #%d  %s  %d bytes  %.3fs  %s\n",
			segment.Index, segment.ChunkFile, segment.Size, segment.DurationSeconds, segment.Hash)
	}
}
