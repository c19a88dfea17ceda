// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/canonjson"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
)

// ArchiveVersion is the trst_version written into new archives.
const ArchiveVersion = "1.0"

// signatureField is the top-level key excluded from the signed form.
const signatureField = "signature"

// Archive is the manifest.json of an archive container.
type Archive struct {
	TrstVersion string           `json:"trst_version"`
	Profile     string           `json:"profile"`
	Device      Device           `json:"device"`
	Capture     Capture          `json:"capture"`
	Chunk       ChunkInfo        `json:"chunk"`
	Header      ArchiveHeader    `json:"header"`
	Segments    []ArchiveSegment `json:"segments"`
	ChainTip    digest.Digest    `json:"chain_tip"`
	Claims      map[string]any   `json:"claims,omitempty"`
	Signature   string           `json:"signature,omitempty"`
}

// Device identifies the capture device and its signing key.
type Device struct {
	ID              string `json:"id"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	PublicKey       string `json:"public_key"`
}

// Capture describes the recording session.
type Capture struct {
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Timezone   string    `json:"timezone"`
	FPS        float64   `json:"fps,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Codec      string    `json:"codec,omitempty"`
}

// ChunkInfo records the nominal segmenting parameters.
type ChunkInfo struct {
	ApproxDurationSeconds float64 `json:"approx_duration_s"`
	SizeBytes             int     `json:"size_bytes"`
}

// ArchiveHeader embeds the container header. Raw is authoritative;
// Fields is a readable copy that must agree with it.
type ArchiveHeader struct {
	Raw    string        `json:"raw"`
	Hash   digest.Digest `json:"hash"`
	Fields HeaderFields  `json:"fields"`
}

// HeaderFields is the decoded header, for readers of manifest.json.
type HeaderFields struct {
	Version     uint8         `json:"version"`
	Algorithm   string        `json:"algorithm"`
	KeyID       format.KeyID  `json:"key_id"`
	DeviceHash  digest.Digest `json:"device_hash"`
	NoncePrefix string        `json:"nonce_prefix"`
	ChunkSize   uint32        `json:"chunk_size"`
}

// ArchiveSegment describes one chunk file.
type ArchiveSegment struct {
	Index           uint64        `json:"index"`
	ChunkFile       string        `json:"chunk_file"`
	Hash            digest.Digest `json:"blake3_hash"`
	PlaintextHash   digest.Digest `json:"plaintext_hash"`
	StartTime       float64       `json:"start_time"`
	DurationSeconds float64       `json:"duration_s"`
	ContinuityHash  digest.Digest `json:"continuity_hash"`
	Size            int64         `json:"size"`
}

// NewArchiveHeader fills the embedded header from h.
func NewArchiveHeader(h format.Header) ArchiveHeader {
	raw := h.Bytes()
	return ArchiveHeader{
		Raw:    hex.EncodeToString(raw[:]),
		Hash:   h.Hash(),
		Fields: headerFields(h),
	}
}

func headerFields(h format.Header) HeaderFields {
	return HeaderFields{
		Version:     h.Version,
		Algorithm:   h.Algorithm.String(),
		KeyID:       h.KeyID,
		DeviceHash:  h.DeviceHash,
		NoncePrefix: hex.EncodeToString(h.NoncePrefix[:]),
		ChunkSize:   h.ChunkSize,
	}
}

// Decode parses Raw and checks that Hash and Fields agree with it.
func (a ArchiveHeader) Decode() (format.Header, error) {
	raw, err := hex.DecodeString(a.Raw)
	if err != nil {
		return format.Header{}, fmt.Errorf("%w: header raw: %v", ErrInvalid, err)
	}
	h, err := format.ParseHeader(raw)
	if err != nil {
		return format.Header{}, err
	}
	if h.Hash() != a.Hash {
		return format.Header{}, fmt.Errorf("%w: header hash does not match raw header", ErrInvalid)
	}
	if headerFields(h) != a.Fields {
		return format.Header{}, fmt.Errorf("%w: header fields do not match raw header", ErrInvalid)
	}
	return h, nil
}

// ContextHash binds archive segments to the profile and device they
// were captured under. It is the AEAD context for every chunk and is
// known before any chunk is sealed.
func ContextHash(profile string, device Device) (digest.Digest, error) {
	encoded, err := canonjson.Marshal(struct {
		Profile string `json:"profile"`
		Device  Device `json:"device"`
	}{profile, device})
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.HashManifest(encoded), nil
}

// Marshal returns the canonical manifest.json bytes, including the
// signature field when set.
func (a *Archive) Marshal() ([]byte, error) {
	return canonjson.Marshal(a)
}

// ToBeSigned returns the canonical bytes the signature covers.
func (a *Archive) ToBeSigned() ([]byte, error) {
	encoded, err := a.Marshal()
	if err != nil {
		return nil, err
	}
	return ToBeSigned(encoded)
}

// ToBeSigned returns the signed form of raw manifest.json bytes: the
// canonical form without the top-level signature field. Works whether
// or not the field is present.
func ToBeSigned(raw []byte) ([]byte, error) {
	signed, err := canonjson.WithoutField(raw, signatureField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return signed, nil
}

// SignArchive signs a and stores the text signature in a.Signature.
func SignArchive(a *Archive, signer crypto.Signer) (string, error) {
	signed, err := a.ToBeSigned()
	if err != nil {
		return "", err
	}
	signature, err := Sign(signer, ArchiveDomain, signed)
	if err != nil {
		return "", err
	}
	a.Signature = FormatSignature(signature)
	return a.Signature, nil
}

// VerifyArchive checks signatureText over the raw manifest.json bytes.
func VerifyArchive(raw []byte, publicKey ed25519.PublicKey, signatureText string) error {
	signature, err := ParseSignature(signatureText)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	signed, err := ToBeSigned(raw)
	if err != nil {
		return err
	}
	return Verify(publicKey, ArchiveDomain, signed, signature)
}

// ParseArchive decodes manifest.json. Unknown fields and duplicate
// keys are rejected.
func ParseArchive(raw []byte) (*Archive, error) {
	if _, err := canonjson.Canonicalize(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var a Archive
	if err := decoder.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks manifest fields that do not need the chunk files.
func (a *Archive) Validate() error {
	if a.TrstVersion != ArchiveVersion {
		return fmt.Errorf("%w: trst_version %q", ErrInvalid, a.TrstVersion)
	}
	if a.Device.ID == "" {
		return fmt.Errorf("%w: device.id is empty", ErrInvalid)
	}
	if _, err := ParsePublicKey(a.Device.PublicKey); err != nil {
		return fmt.Errorf("%w: device.public_key: %v", ErrInvalid, err)
	}
	if len(a.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalid)
	}
	for position, segment := range a.Segments {
		// Chunk paths are derived, never trusted, so a manifest cannot
		// point outside the archive.
		if segment.ChunkFile != ChunkFileName(segment.Index) {
			return fmt.Errorf("%w: segment %d names chunk file %q", ErrInvalid, position, segment.ChunkFile)
		}
		if segment.DurationSeconds < 0 || segment.Size < 0 {
			return fmt.Errorf("%w: segment %d has negative size or duration", ErrInvalid, position)
		}
	}
	return nil
}

// TotalDuration sums segment durations in seconds.
func (a *Archive) TotalDuration() float64 {
	var total float64
	for _, segment := range a.Segments {
		total += segment.DurationSeconds
	}
	return total
}

// ChunkFileName returns the archive-relative path of chunk index.
func ChunkFileName(index uint64) string {
	return fmt.Sprintf("chunks/%05d.bin", index)
}
