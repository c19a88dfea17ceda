// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"errors"
	"fmt"
	"io"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
)

// recordsPerWorker sets how many records are held per worker between
// the parallel and sequential phases.
const recordsPerWorker = 4

// recordResult is the parallel-phase outcome for one record.
type recordResult struct {
	record  *format.Record
	segment *manifest.Segment

	// checkErr is a signature, binding, or manifest decoding failure.
	checkErr error

	// openErr is an AEAD, nonce, or plaintext hash failure.
	openErr error
}

// streamState carries the sequential phase across batches.
type streamState struct {
	checker    *chain.Checker
	terminated bool
	openErr    error
	stopped    bool
}

// Stream verifies a stream container read from source.
func (v *Verifier) Stream(source io.Reader) *Report {
	return v.verifyStream(source, "stream")
}

func (v *Verifier) verifyStream(source io.Reader, name string) *Report {
	start := v.options.Clock.Now()
	report := newReport(VariantStream)

	reader, err := format.NewReader(source)
	if err != nil {
		report.structural(err)
		return v.finish(report, start, name)
	}
	header := reader.Header()
	headerHash := header.Hash()

	// The final record's ciphertext is covered only by its AEAD tag and
	// plaintext hash, so a stream cannot pass without decryption.
	var cipher *segcipher.Cipher
	if v.options.Keys != nil {
		key, err := v.options.Keys(header.KeyID)
		if err != nil {
			report.structural(fmt.Errorf("resolving key %s: %w", header.KeyID, err))
			return v.finish(report, start, name)
		}
		cipher, err = segcipher.New(key, header.Algorithm)
		key.Close()
		if err != nil {
			report.structural(err)
			return v.finish(report, start, name)
		}
	}

	state := &streamState{checker: chain.NewChecker(headerHash)}
	window := v.options.Workers * recordsPerWorker
	clean := true

	for !state.stopped {
		batch, readErr := readBatch(reader, window)

		results := make([]recordResult, len(batch))
		parallel(len(batch), v.options.Workers, func(index int) {
			results[index] = v.checkRecord(cipher, header, headerHash, batch[index])
		})
		for index := range results {
			if state.stopped {
				break
			}
			v.replay(report, state, &results[index])
		}
		if state.stopped {
			break
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if format.IsRecordTruncation(readErr) && state.checker.Observed() > 0 {
			clean = false
			report.Failures = append(report.Failures, Failure{Kind: "truncated", Detail: readErr.Error()})
			break
		}
		report.structural(readErr)
		return v.finish(report, start, name)
	}
	if state.stopped {
		return v.finish(report, start, name)
	}

	if state.checker.Observed() == 0 {
		report.structural(fmt.Errorf("%w: container holds no complete records", stream.ErrEmpty))
		return v.finish(report, start, name)
	}

	state.checker.Finish(clean, state.terminated)
	report.Signature = Pass
	report.Segments = state.checker.Observed()
	report.addViolations(state.checker)

	switch {
	case state.openErr != nil:
		report.Continuity = Fail
		report.Class = ClassAEAD
		report.Error = state.openErr.Error()
	case !state.checker.OK():
		report.Continuity = Fail
		report.Class = ClassContinuity
		first := state.checker.Violations()[0]
		report.Error = first.Error()
	case cipher == nil:
		report.Continuity = Unknown
		report.Class = ClassInternal
		report.Error = ErrKeyRequired.Error()
		report.Failures = append(report.Failures, Failure{Kind: "key_required", Detail: ErrKeyRequired.Error()})
	default:
		report.Continuity = Pass
	}
	return v.finish(report, start, name)
}

// readBatch reads up to limit records. A non-nil error is returned
// alongside the records read before it.
func readBatch(reader *format.Reader, limit int) ([]*format.Record, error) {
	var batch []*format.Record
	for len(batch) < limit {
		record, err := reader.ReadRecord()
		if err != nil {
			return batch, err
		}
		batch = append(batch, record)
	}
	return batch, nil
}

// checkRecord is the parallel phase for one record. Plaintext never
// leaves this function.
func (v *Verifier) checkRecord(cipher *segcipher.Cipher, header format.Header, headerHash digest.Digest, record *format.Record) recordResult {
	result := recordResult{record: record}
	segment, err := stream.CheckRecord(header, headerHash, record, v.options.PublicKey)
	if err != nil {
		result.checkErr = err
		return result
	}
	result.segment = segment
	if cipher != nil {
		plaintext, err := stream.OpenRecord(cipher, header, headerHash, record, segment)
		if err != nil {
			result.openErr = err
		}
		secret.Zero(plaintext)
	}
	return result
}

// replay is the sequential phase for one record.
func (v *Verifier) replay(report *Report, state *streamState, result *recordResult) {
	sequence := result.record.Sequence
	if result.checkErr != nil {
		if Classify(result.checkErr) == ClassSignature {
			report.signatureFailed(result.checkErr, &sequence)
		} else {
			report.structural(result.checkErr)
		}
		state.stopped = true
		return
	}

	segment := result.segment
	if sequence == 0 {
		report.Profile = metadataString(segment.Metadata, "profile")
		report.DeviceID = metadataString(segment.Metadata, "device_id")
	}

	if result.openErr != nil {
		if state.openErr == nil {
			state.openErr = result.openErr
		}
		report.Failures = append(report.Failures, Failure{Kind: string(ClassAEAD), Index: &sequence, Detail: result.openErr.Error()})
	}

	if state.terminated {
		state.checker.Add(chain.Violation{Kind: chain.ChainMismatch, Index: sequence, Detail: "record after final segment"})
	}
	if segment.Final {
		state.checker.CommitTip(sequence, *segment.ChainTip)
		state.terminated = true
	}

	// The stream commits to ciphertext only through the final chain
	// tip, so stored and recomputed hashes are the same value here.
	hash := digest.HashSegment(result.record.Ciphertext)
	state.checker.Observe(chain.Observation{Index: sequence, Stored: hash, Recomputed: hash})
}

func metadataString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return value
}
