// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
)

const (
	// Magic opens every stream container.
	Magic = "TRST"

	// WireVersion is the stream framing version that follows Magic.
	WireVersion uint8 = 1

	// HeaderVersion is the header format version.
	HeaderVersion uint8 = 1

	// HeaderSize is the encoded header length.
	HeaderSize = 58

	// PreambleSize is magic, wire version, and header.
	PreambleSize = len(Magic) + 1 + HeaderSize
)

// KeyID identifies the symmetric key a container was sealed under.
// Key ids are random UUIDs; the bytes are opaque to verification.
type KeyID [16]byte

// NewKeyID returns a random key id.
func NewKeyID() KeyID {
	return KeyID(uuid.New())
}

// ParseKeyID parses the canonical UUID text form.
func ParseKeyID(s string) (KeyID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return KeyID{}, fmt.Errorf("parsing key id: %w", err)
	}
	return KeyID(parsed), nil
}

// String returns the canonical UUID text form.
func (k KeyID) String() string {
	return uuid.UUID(k).String()
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyID) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyID) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyID(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Header is the fixed container header. It is immutable once written;
// its hash is the container identity.
type Header struct {
	Version     uint8
	Algorithm   segcipher.Algorithm
	KeyID       KeyID
	DeviceHash  digest.Digest
	NoncePrefix [segcipher.NoncePrefixSize]byte
	ChunkSize   uint32
}

// Bytes returns the 58-byte encoding of h.
func (h Header) Bytes() [HeaderSize]byte {
	var encoded [HeaderSize]byte
	encoded[0] = h.Version
	encoded[1] = byte(h.Algorithm)
	copy(encoded[2:18], h.KeyID[:])
	copy(encoded[18:50], h.DeviceHash[:])
	copy(encoded[50:54], h.NoncePrefix[:])
	binary.BigEndian.PutUint32(encoded[54:58], h.ChunkSize)
	return encoded
}

// Hash returns the container identity.
func (h Header) Hash() digest.Digest {
	encoded := h.Bytes()
	return digest.HashHeader(encoded[:])
}

// Validate checks the header fields that have a closed set of values.
func (h Header) Validate() error {
	if h.Version != HeaderVersion {
		return fmt.Errorf("%w: header version %d", ErrUnsupportedVersion, h.Version)
	}
	if !h.Algorithm.Valid() {
		return fmt.Errorf("%w: algorithm %d", ErrUnsupportedVersion, h.Algorithm)
	}
	if h.ChunkSize == 0 {
		return fmt.Errorf("%w: zero chunk size", ErrSchemaInvalid)
	}
	return nil
}

// ParseHeader decodes and validates a 58-byte header.
func ParseHeader(encoded []byte) (Header, error) {
	if len(encoded) != HeaderSize {
		return Header{}, &Error{Kind: Truncated, Record: HeaderRecord, Err: fmt.Errorf("header is %d bytes, want %d", len(encoded), HeaderSize)}
	}
	var h Header
	h.Version = encoded[0]
	h.Algorithm = segcipher.Algorithm(encoded[1])
	copy(h.KeyID[:], encoded[2:18])
	copy(h.DeviceHash[:], encoded[18:50])
	copy(h.NoncePrefix[:], encoded[50:54])
	h.ChunkSize = binary.BigEndian.Uint32(encoded[54:58])

	if err := h.Validate(); err != nil {
		kind := SchemaInvalid
		if errors.Is(err, ErrUnsupportedVersion) {
			kind = UnsupportedVersion
		}
		return Header{}, &Error{Kind: kind, Record: HeaderRecord, Err: err}
	}
	return h, nil
}

// WriteHeader writes magic, wire version, and header.
func WriteHeader(w io.Writer, h Header) error {
	if err := h.Validate(); err != nil {
		return err
	}
	encoded := h.Bytes()
	preamble := make([]byte, 0, PreambleSize)
	preamble = append(preamble, Magic...)
	preamble = append(preamble, WireVersion)
	preamble = append(preamble, encoded[:]...)
	if _, err := w.Write(preamble); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates magic, wire version, and header.
func ReadHeader(r io.Reader) (Header, error) {
	var preamble [PreambleSize]byte
	n, err := io.ReadFull(r, preamble[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Report bad magic over truncation when what did arrive is
			// already wrong, so a non-container file is named as such.
			if n >= len(Magic) && string(preamble[:len(Magic)]) != Magic {
				return Header{}, &Error{Kind: BadMagic, Record: HeaderRecord}
			}
			return Header{}, &Error{Kind: Truncated, Offset: int64(n), Record: HeaderRecord, Err: fmt.Errorf("stream ends after %d of %d preamble bytes", n, PreambleSize)}
		}
		return Header{}, fmt.Errorf("reading header: %w", err)
	}

	if string(preamble[:len(Magic)]) != Magic {
		return Header{}, &Error{Kind: BadMagic, Record: HeaderRecord}
	}
	if version := preamble[len(Magic)]; version != WireVersion {
		return Header{}, &Error{Kind: UnsupportedVersion, Offset: int64(len(Magic)), Record: HeaderRecord, Err: fmt.Errorf("wire version %d", version)}
	}

	h, err := ParseHeader(preamble[len(Magic)+1:])
	if err != nil {
		var formatError *Error
		if errors.As(err, &formatError) {
			formatError.Offset = int64(len(Magic) + 1)
		}
		return Header{}, err
	}
	return h, nil
}
