// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/codec"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
)

// SegmentVersion is the stream manifest format version.
const SegmentVersion = 1

// ErrInvalid is wrapped by manifest decoding and validation failures.
var ErrInvalid = errors.New("manifest: invalid")

// Segment is the signed manifest of one stream record.
type Segment struct {
	Version         uint8          `cbor:"1,keyasint"`
	TimestampMillis int64          `cbor:"2,keyasint"`
	Sequence        uint64         `cbor:"3,keyasint"`
	HeaderHash      digest.Digest  `cbor:"4,keyasint"`
	PlaintextHash   digest.Digest  `cbor:"5,keyasint"`
	PlaintextLength uint64         `cbor:"6,keyasint"`
	KeyID           format.KeyID   `cbor:"7,keyasint"`
	Final           bool           `cbor:"8,keyasint,omitempty"`
	ChainTip        *digest.Digest `cbor:"9,keyasint,omitempty"`
	Metadata        map[string]any `cbor:"10,keyasint,omitempty"`
}

// Validate checks field consistency that does not need the container.
func (s *Segment) Validate() error {
	if s.Version != SegmentVersion {
		return fmt.Errorf("%w: version %d", ErrInvalid, s.Version)
	}
	if s.Final != (s.ChainTip != nil) {
		return fmt.Errorf("%w: chain tip must be present exactly on the final record", ErrInvalid)
	}
	return nil
}

// EncodeSegment returns the deterministic CBOR encoding of s.
func EncodeSegment(s *Segment) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding segment manifest: %w", err)
	}
	return data, nil
}

// DecodeSegment decodes a stream manifest. The input must be exactly
// the deterministic encoding of the decoded value: unknown keys,
// wrong-length hashes, and non-canonical encodings are rejected, so
// the signed bytes and the decoded meaning cannot diverge.
func DecodeSegment(data []byte) (*Segment, error) {
	var s Segment
	if err := codec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	reencoded, err := codec.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !bytes.Equal(reencoded, data) {
		return nil, fmt.Errorf("%w: not in canonical encoding", ErrInvalid)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
