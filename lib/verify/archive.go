// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/archive"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
)

// chunkResult is the parallel-phase outcome for one chunk file.
type chunkResult struct {
	recomputed digest.Digest

	// readErr is set when the chunk file could not be read.
	readErr error

	// openErr is an AEAD or plaintext hash failure.
	openErr error
}

// Archive verifies the archive container at directory.
func (v *Verifier) Archive(directory string) *Report {
	start := v.options.Clock.Now()
	report := newReport(VariantArchive)

	container, err := archive.Load(directory)
	if err != nil {
		report.structural(err)
		return v.finish(report, start, directory)
	}
	archived := container.Manifest
	report.Profile = archived.Profile
	report.DeviceID = archived.Device.ID

	if err := container.VerifySignature(v.options.PublicKey); err != nil {
		report.signatureFailed(err, nil)
		return v.finish(report, start, directory)
	}
	if digest.HashDevice(archived.Device.ID) != container.Header.DeviceHash {
		report.signatureFailed(fmt.Errorf("%w: header device hash does not match device %q", stream.ErrBinding, archived.Device.ID), nil)
		return v.finish(report, start, directory)
	}
	report.Signature = Pass

	// Stray files are reported but do not fail an archive whose signed
	// segments all check out. A listing error surfaces below as a
	// missing chunk.
	if unlisted, err := container.UnlistedChunks(); err == nil {
		for _, name := range unlisted {
			report.Failures = append(report.Failures, Failure{Kind: "unlisted_chunk", Detail: name + " is not named by the manifest"})
		}
	}

	contextHash, err := container.ContextHash()
	if err != nil {
		report.Continuity = Unknown
		report.Class = ClassInternal
		report.Error = err.Error()
		return v.finish(report, start, directory)
	}

	var cipher *segcipher.Cipher
	if v.options.Keys != nil {
		key, err := v.options.Keys(container.Header.KeyID)
		if err != nil {
			report.Class = Classify(err)
			report.Error = fmt.Sprintf("resolving key %s: %v", container.Header.KeyID, err)
			return v.finish(report, start, directory)
		}
		cipher, err = segcipher.New(key, container.Header.Algorithm)
		key.Close()
		if err != nil {
			report.Class = ClassFormat
			report.Error = err.Error()
			return v.finish(report, start, directory)
		}
	}

	segments := archived.Segments
	results := make([]chunkResult, len(segments))
	parallel(len(segments), v.options.Workers, func(index int) {
		results[index] = v.checkChunk(container, cipher, contextHash, segments[index])
	})

	// Missing or unreadable chunks make the archive structurally
	// incomplete; continuity cannot be judged.
	var readErr error
	for index, result := range results {
		if result.readErr == nil {
			continue
		}
		if readErr == nil {
			readErr = result.readErr
		}
		segmentIndex := segments[index].Index
		kind := "missing_chunk"
		if !errors.Is(result.readErr, fs.ErrNotExist) {
			kind = "unreadable_chunk"
		}
		report.Failures = append(report.Failures, Failure{Kind: kind, Index: &segmentIndex, Detail: result.readErr.Error()})
	}
	if readErr != nil {
		report.Continuity = Unknown
		report.Class = ClassIO
		report.Error = readErr.Error()
		report.Segments = uint64(len(segments))
		return v.finish(report, start, directory)
	}

	checker := chain.NewChecker(container.HeaderHash)
	nominal := archived.Chunk.ApproxDurationSeconds
	tolerance := v.options.DurationTolerance.Seconds()
	var openErr error
	for index, segment := range segments {
		previous := segment.ContinuityHash
		checker.Observe(chain.Observation{
			Index:      segment.Index,
			Stored:     segment.Hash,
			Recomputed: results[index].recomputed,
			Previous:   &previous,
		})
		if nominal > 0 && segment.DurationSeconds > nominal+tolerance {
			checker.Add(chain.Violation{
				Kind:   chain.UnexpectedEnd,
				Index:  segment.Index,
				Detail: fmt.Sprintf("duration %.3fs exceeds nominal %.3fs", segment.DurationSeconds, nominal),
			})
		}
		if err := results[index].openErr; err != nil {
			if openErr == nil {
				openErr = err
			}
			segmentIndex := segment.Index
			report.Failures = append(report.Failures, Failure{Kind: string(ClassAEAD), Index: &segmentIndex, Detail: err.Error()})
		}
	}
	checker.CommitTip(uint64(len(segments)), archived.ChainTip)
	checker.Finish(true, true)

	report.Segments = checker.Observed()
	report.DurationSeconds = archived.TotalDuration()
	report.addViolations(checker)

	switch {
	case !checker.OK():
		report.Continuity = Fail
		report.Class = ClassContinuity
		first := checker.Violations()[0]
		report.Error = first.Error()
	case openErr != nil:
		report.Continuity = Fail
		report.Class = ClassAEAD
		report.Error = openErr.Error()
	default:
		report.Continuity = Pass
	}
	return v.finish(report, start, directory)
}

// checkChunk is the parallel phase for one chunk file. Without a
// cipher the file is hashed as it streams from disk.
func (v *Verifier) checkChunk(container *archive.Container, cipher *segcipher.Cipher, contextHash digest.Digest, segment manifest.ArchiveSegment) chunkResult {
	if cipher == nil {
		file, err := os.Open(container.ChunkPath(segment))
		if err != nil {
			return chunkResult{readErr: fmt.Errorf("chunk file %s: %w", segment.ChunkFile, err)}
		}
		defer file.Close()
		recomputed, err := digest.HashSegmentReader(file)
		if err != nil {
			return chunkResult{readErr: fmt.Errorf("chunk file %s: %w", segment.ChunkFile, err)}
		}
		return chunkResult{recomputed: recomputed}
	}

	stored, err := container.ReadChunk(segment)
	if err != nil {
		return chunkResult{readErr: err}
	}
	result := chunkResult{recomputed: digest.HashSegment(stored)}
	// Decrypting a chunk whose hash already mismatches would only
	// repeat the finding.
	if result.recomputed != segment.Hash {
		return result
	}
	plaintext, err := container.OpenChunk(cipher, contextHash, segment, stored)
	if err != nil {
		result.openErr = err
	}
	secret.Zero(plaintext)
	return result
}
