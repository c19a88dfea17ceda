// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"crypto"
	"fmt"
	"io"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// Writer writes a stream container incrementally. It holds one segment
// back, because only at Close is it known which segment is final.
//
// Writer is not safe for concurrent use.
type Writer struct {
	destination io.Writer
	sealer      *sealer
	chain       *chain.Chain

	// buffered collects Write input until it fills a chunk.
	buffered []byte

	pending    []byte
	hasPending bool

	sequence       uint64
	plaintextBytes uint64
	closed         bool
	err            error
}

// NewWriter writes the container header to destination and returns a
// Writer for its segments. The key is borrowed for the lifetime of the
// Writer and must stay open until Close returns.
func NewWriter(destination io.Writer, signer crypto.Signer, key *secret.Buffer, options Options) (*Writer, error) {
	if err := options.normalize(); err != nil {
		return nil, err
	}
	s, err := newSealer(signer, key, options)
	if err != nil {
		return nil, err
	}
	if err := format.WriteHeader(destination, s.header); err != nil {
		return nil, err
	}
	return &Writer{
		destination: destination,
		sealer:      s,
		chain:       chain.New(s.headerHash),
	}, nil
}

// Header returns the container header.
func (w *Writer) Header() format.Header {
	return w.sealer.header
}

// Write buffers p and emits a segment each time ChunkSize bytes have
// accumulated. It implements io.Writer so input can be copied in.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	chunkSize := w.sealer.options.ChunkSize
	written := 0
	for len(p) > 0 {
		room := chunkSize - len(w.buffered)
		take := min(room, len(p))
		w.buffered = append(w.buffered, p[:take]...)
		p = p[take:]
		written += take
		if len(w.buffered) == chunkSize {
			segment := w.buffered
			w.buffered = nil
			if err := w.WriteSegment(segment); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// WriteSegment adds one segment with an explicit boundary, for callers
// whose segments are capture units rather than fixed-size chunks. Any
// bytes buffered by Write are flushed as their own segment first.
// segment must not be modified after the call.
func (w *Writer) WriteSegment(segment []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(segment) == 0 {
		return fmt.Errorf("stream: empty segment")
	}
	if len(segment) > MaxChunkSize {
		return fmt.Errorf("stream: segment of %d bytes exceeds %d", len(segment), MaxChunkSize)
	}
	if len(w.buffered) > 0 {
		flushed := w.buffered
		w.buffered = nil
		if err := w.push(flushed); err != nil {
			return err
		}
	}
	return w.push(segment)
}

func (w *Writer) push(segment []byte) error {
	if w.hasPending {
		if err := w.emit(w.pending, false); err != nil {
			return err
		}
	}
	w.pending = segment
	w.hasPending = true
	return nil
}

func (w *Writer) emit(plaintext []byte, final bool) error {
	var tip *digest.Digest
	if final {
		state := w.chain.State()
		tip = &state
	}
	record, err := w.sealer.seal(w.sequence, plaintext, final, tip)
	if err != nil {
		return w.fail(err)
	}
	if err := format.WriteRecord(w.destination, record); err != nil {
		return w.fail(err)
	}
	w.chain.Append(digest.HashSegment(record.Ciphertext))
	w.sequence++
	w.plaintextBytes += uint64(len(plaintext))
	w.sealer.options.Logger.Debug("sealed segment",
		"sequence", record.Sequence,
		"plaintext_bytes", len(plaintext),
		"final", final,
	)
	return nil
}

// Close seals the held-back segment as final. A Writer that received
// no data returns ErrEmpty; what it wrote is not a valid container.
func (w *Writer) Close() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.buffered) > 0 {
		flushed := w.buffered
		w.buffered = nil
		if err := w.push(flushed); err != nil {
			return err
		}
	}
	w.closed = true
	if !w.hasPending {
		return ErrEmpty
	}
	if err := w.emit(w.pending, true); err != nil {
		return err
	}
	w.pending = nil
	w.sealer.options.Logger.Info("sealed stream container",
		"segments", w.sequence,
		"plaintext_bytes", w.plaintextBytes,
		"header_hash", w.sealer.headerHash.String(),
	)
	return nil
}

// Summary describes what has been written. ChainTip is the state over
// every sealed ciphertext, including the final one once closed.
func (w *Writer) Summary() Summary {
	return Summary{
		Header:         w.sealer.header,
		HeaderHash:     w.sealer.headerHash,
		Segments:       w.sequence,
		PlaintextBytes: w.plaintextBytes,
		ChainTip:       w.chain.State(),
	}
}

func (w *Writer) usable() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ErrClosed
	}
	return nil
}

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}
