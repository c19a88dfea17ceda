// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// batchPerWorker sets how many segments are read ahead per worker.
// Memory use is bounded by Workers * batchPerWorker * ChunkSize.
const batchPerWorker = 4

// Wrap reads all of source, splits it into ChunkSize segments, and
// writes a complete stream container to destination. Empty input is
// rejected with ErrEmpty before anything is written.
//
// The key is borrowed and NOT closed. On error, whatever was written
// to destination is not a valid container.
func Wrap(destination io.Writer, source io.Reader, signer crypto.Signer, key *secret.Buffer, options Options) (*Summary, error) {
	if err := options.normalize(); err != nil {
		return nil, err
	}
	s, err := newSealer(signer, key, options)
	if err != nil {
		return nil, err
	}

	next, err := readChunk(source, options.ChunkSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	if err := format.WriteHeader(destination, s.header); err != nil {
		return nil, err
	}

	accumulator := chain.New(s.headerHash)
	summary := &Summary{Header: s.header, HeaderHash: s.headerHash}
	window := options.Workers * batchPerWorker
	var sequence uint64

	for {
		// Collect a batch of non-final segments. The segment held in
		// next becomes final when source has nothing after it.
		var batch []job
		final := false
		for len(batch) < window {
			following, err := readChunk(source, options.ChunkSize)
			if errors.Is(err, io.EOF) {
				final = true
				break
			}
			if err != nil {
				return nil, err
			}
			batch = append(batch, job{sequence: sequence, plaintext: next})
			sequence++
			next = following
		}

		records, err := sealBatch(s, batch, options.Workers)
		if err != nil {
			return nil, err
		}
		for index, record := range records {
			if err := format.WriteRecord(destination, record); err != nil {
				return nil, err
			}
			accumulator.Append(digest.HashSegment(record.Ciphertext))
			summary.PlaintextBytes += uint64(len(batch[index].plaintext))
		}

		if final {
			break
		}
	}

	tip := accumulator.State()
	record, err := s.seal(sequence, next, true, &tip)
	if err != nil {
		return nil, err
	}
	if err := format.WriteRecord(destination, record); err != nil {
		return nil, err
	}
	accumulator.Append(digest.HashSegment(record.Ciphertext))

	summary.Segments = sequence + 1
	summary.PlaintextBytes += uint64(len(next))
	summary.ChainTip = accumulator.State()

	options.Logger.Info("wrapped stream container",
		"segments", summary.Segments,
		"plaintext_bytes", summary.PlaintextBytes,
		"algorithm", options.Algorithm.String(),
		"workers", options.Workers,
		"header_hash", summary.HeaderHash.String(),
	)
	return summary, nil
}

type job struct {
	sequence  uint64
	plaintext []byte
}

// sealBatch seals jobs on up to workers goroutines and returns the
// records in job order. The first error wins.
func sealBatch(s *sealer, jobs []job, workers int) ([]*format.Record, error) {
	records := make([]*format.Record, len(jobs))
	if len(jobs) == 0 {
		return records, nil
	}

	var (
		waitGroup sync.WaitGroup
		errorOnce sync.Once
		firstErr  error
	)
	indices := make(chan int)
	for range min(workers, len(jobs)) {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for index := range indices {
				record, err := s.seal(jobs[index].sequence, jobs[index].plaintext, false, nil)
				if err != nil {
					errorOnce.Do(func() { firstErr = err })
					continue
				}
				records[index] = record
			}
		}()
	}
	for index := range jobs {
		indices <- index
	}
	close(indices)
	waitGroup.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

// readChunk reads up to size bytes. It returns io.EOF only when no
// bytes remain.
func readChunk(source io.Reader, size int) ([]byte, error) {
	chunk := make([]byte, size)
	n, err := io.ReadFull(source, chunk)
	switch {
	case err == nil:
		return chunk, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return chunk[:n], nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("reading input: %w", err)
	}
}
