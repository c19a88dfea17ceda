// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bufio"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
)

const (
	// MaxManifestSize bounds manifest_len.
	MaxManifestSize = 1 << 20

	// MaxCiphertextSize bounds ciphertext_len: a 64 MiB segment plus
	// its tag.
	MaxCiphertextSize = 64<<20 + segcipher.Overhead
)

// Record is one stream segment with its signed manifest.
type Record struct {
	Sequence   uint64
	Nonce      [segcipher.NonceSize]byte
	Manifest   []byte
	Signature  [ed25519.SignatureSize]byte
	PublicKey  [ed25519.PublicKeySize]byte
	Ciphertext []byte
}

// EncodedSize returns the number of bytes WriteRecord emits for r.
func (r *Record) EncodedSize() int64 {
	return int64(8 + segcipher.NonceSize + 4 + len(r.Manifest) + ed25519.SignatureSize + ed25519.PublicKeySize + 4 + len(r.Ciphertext))
}

func (r *Record) validate() error {
	if len(r.Manifest) == 0 || len(r.Manifest) > MaxManifestSize {
		return fmt.Errorf("%w: manifest length %d", ErrSchemaInvalid, len(r.Manifest))
	}
	if len(r.Ciphertext) < segcipher.Overhead || len(r.Ciphertext) > MaxCiphertextSize {
		return fmt.Errorf("%w: ciphertext length %d", ErrSchemaInvalid, len(r.Ciphertext))
	}
	return nil
}

// WriteRecord writes one record.
func WriteRecord(w io.Writer, r *Record) error {
	if err := r.validate(); err != nil {
		return err
	}

	fixed := make([]byte, 0, 8+segcipher.NonceSize+4)
	fixed = binary.BigEndian.AppendUint64(fixed, r.Sequence)
	fixed = append(fixed, r.Nonce[:]...)
	fixed = binary.BigEndian.AppendUint32(fixed, uint32(len(r.Manifest)))

	trailer := make([]byte, 0, ed25519.SignatureSize+ed25519.PublicKeySize+4)
	trailer = append(trailer, r.Signature[:]...)
	trailer = append(trailer, r.PublicKey[:]...)
	trailer = binary.BigEndian.AppendUint32(trailer, uint32(len(r.Ciphertext)))

	for _, part := range [][]byte{fixed, r.Manifest, trailer, r.Ciphertext} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("writing record %d: %w", r.Sequence, err)
		}
	}
	return nil
}

// Reader reads a stream container.
type Reader struct {
	source *bufio.Reader
	header Header
	offset int64
	index  int64
}

// NewReader reads the preamble from r and returns a Reader positioned
// at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	source := bufio.NewReaderSize(r, 64<<10)
	header, err := ReadHeader(source)
	if err != nil {
		return nil, err
	}
	return &Reader{source: source, header: header, offset: int64(PreambleSize)}, nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.header
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Records returns the number of complete records read.
func (r *Reader) Records() int64 {
	return r.index
}

// ReadRecord reads the next record. It returns io.EOF when the stream
// ends exactly at a record boundary, and an *Error of kind Truncated
// when it ends inside a record.
func (r *Reader) ReadRecord() (*Record, error) {
	start := r.offset
	record := &Record{}

	var fixed [8 + segcipher.NonceSize + 4]byte
	n, err := io.ReadFull(r.source, fixed[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, r.fail(start, err)
	}
	record.Sequence = binary.BigEndian.Uint64(fixed[0:8])
	copy(record.Nonce[:], fixed[8:20])
	manifestLength := binary.BigEndian.Uint32(fixed[20:24])
	if manifestLength == 0 || manifestLength > MaxManifestSize {
		return nil, &Error{Kind: SchemaInvalid, Offset: start, Record: r.index, Err: fmt.Errorf("manifest length %d", manifestLength)}
	}

	record.Manifest = make([]byte, manifestLength)
	if _, err := io.ReadFull(r.source, record.Manifest); err != nil {
		return nil, r.fail(start, err)
	}

	var trailer [ed25519.SignatureSize + ed25519.PublicKeySize + 4]byte
	if _, err := io.ReadFull(r.source, trailer[:]); err != nil {
		return nil, r.fail(start, err)
	}
	copy(record.Signature[:], trailer[:ed25519.SignatureSize])
	copy(record.PublicKey[:], trailer[ed25519.SignatureSize:ed25519.SignatureSize+ed25519.PublicKeySize])
	ciphertextLength := binary.BigEndian.Uint32(trailer[ed25519.SignatureSize+ed25519.PublicKeySize:])
	if ciphertextLength < segcipher.Overhead || ciphertextLength > MaxCiphertextSize {
		return nil, &Error{Kind: SchemaInvalid, Offset: start, Record: r.index, Err: fmt.Errorf("ciphertext length %d", ciphertextLength)}
	}

	record.Ciphertext = make([]byte, ciphertextLength)
	if _, err := io.ReadFull(r.source, record.Ciphertext); err != nil {
		return nil, r.fail(start, err)
	}

	r.offset += record.EncodedSize()
	r.index++
	return record, nil
}

func (r *Reader) fail(start int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: Truncated, Offset: start, Record: r.index, Err: errors.New("stream ends inside record")}
	}
	return fmt.Errorf("reading record %d at offset %d: %w", r.index, start, err)
}
