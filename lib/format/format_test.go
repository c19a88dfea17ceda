// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/testutil"
)

func testHeader() Header {
	return Header{
		Version:     HeaderVersion,
		Algorithm:   segcipher.ChaCha20Poly1305,
		KeyID:       KeyID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		DeviceHash:  digest.HashDevice("cam-1"),
		NoncePrefix: [4]byte{0xca, 0xfe, 0xba, 0xbe},
		ChunkSize:   4096,
	}
}

func testRecord(seq uint64) *Record {
	record := &Record{
		Sequence:   seq,
		Nonce:      segcipher.Nonce([4]byte{0xca, 0xfe, 0xba, 0xbe}, seq),
		Manifest:   testutil.Payload(100, seq),
		Ciphertext: testutil.Payload(300, seq+1000),
	}
	record.Signature[0] = byte(seq)
	record.PublicKey[31] = 0x42
	return record
}

func encodeContainer(t *testing.T, records int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := WriteHeader(&buffer, testHeader()); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for seq := range uint64(records) {
		if err := WriteRecord(&buffer, testRecord(seq)); err != nil {
			t.Fatalf("WriteRecord(%d): %v", seq, err)
		}
	}
	return buffer.Bytes()
}

func TestHeaderEncoding(t *testing.T) {
	header := testHeader()
	encoded := header.Bytes()
	if len(encoded) != 58 {
		t.Fatalf("header is %d bytes, want 58", len(encoded))
	}
	if encoded[1] != 2 {
		t.Errorf("algorithm byte = %d, want 2", encoded[1])
	}
	if !bytes.Equal(encoded[54:], []byte{0, 0, 0x10, 0}) {
		t.Errorf("chunk size bytes = %x, want big-endian 4096", encoded[54:])
	}

	parsed, err := ParseHeader(encoded[:])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if parsed != header {
		t.Errorf("parsed header = %+v, want %+v", parsed, header)
	}
	if parsed.Hash() != header.Hash() {
		t.Error("hash changed across encoding")
	}
}

func TestReadRoundtrip(t *testing.T) {
	data := encodeContainer(t, 3)

	reader, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if reader.Header() != testHeader() {
		t.Error("header differs")
	}

	for seq := range uint64(3) {
		record, err := reader.ReadRecord()
		if err != nil {
			t.Fatalf("ReadRecord(%d): %v", seq, err)
		}
		want := testRecord(seq)
		if record.Sequence != seq || record.Nonce != want.Nonce || record.Signature != want.Signature || record.PublicKey != want.PublicKey {
			t.Errorf("record %d fixed fields differ", seq)
		}
		if !bytes.Equal(record.Manifest, want.Manifest) || !bytes.Equal(record.Ciphertext, want.Ciphertext) {
			t.Errorf("record %d variable fields differ", seq)
		}
	}

	if _, err := reader.ReadRecord(); err != io.EOF {
		t.Fatalf("ReadRecord at end = %v, want io.EOF", err)
	}
	if reader.Offset() != int64(len(data)) {
		t.Errorf("Offset = %d, want %d", reader.Offset(), len(data))
	}
	if reader.Records() != 3 {
		t.Errorf("Records = %d, want 3", reader.Records())
	}
}

func TestReadHeaderErrors(t *testing.T) {
	valid := encodeContainer(t, 0)

	badWire := append([]byte(nil), valid...)
	badWire[4] = 9
	badHeaderVersion := append([]byte(nil), valid...)
	badHeaderVersion[5] = 2
	badAlgorithm := append([]byte(nil), valid...)
	badAlgorithm[6] = 0xee

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short magic", []byte("TR"), ErrTruncated},
		{"bad magic", append([]byte("NOPE"), valid[4:]...), ErrBadMagic},
		{"bad magic short", []byte("NOPE!"), ErrBadMagic},
		{"truncated header", valid[:40], ErrTruncated},
		{"wire version", badWire, ErrUnsupportedVersion},
		{"header version", badHeaderVersion, ErrUnsupportedVersion},
		{"algorithm", badAlgorithm, ErrUnsupportedVersion},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(test.data))
			if !errors.Is(err, test.want) {
				t.Fatalf("ReadHeader error = %v, want %v", err, test.want)
			}
			if IsRecordTruncation(err) {
				t.Error("header error classified as record truncation")
			}
		})
	}
}

func TestReadRecordTruncation(t *testing.T) {
	data := encodeContainer(t, 2)
	firstRecordEnd := int64(PreambleSize) + testRecord(0).EncodedSize()

	// Cut at several points inside the second record.
	for _, cut := range []int64{1, 20, 30, 150, 200, testRecord(1).EncodedSize() - 1} {
		reader, err := NewReader(bytes.NewReader(data[:firstRecordEnd+cut]))
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		if _, err := reader.ReadRecord(); err != nil {
			t.Fatalf("first record: %v", err)
		}
		_, err = reader.ReadRecord()
		if !errors.Is(err, ErrTruncated) || !IsRecordTruncation(err) {
			t.Fatalf("cut %d: error = %v, want record truncation", cut, err)
		}
		var formatError *Error
		if !errors.As(err, &formatError) {
			t.Fatalf("cut %d: error is %T", cut, err)
		}
		if formatError.Record != 1 || formatError.Offset != firstRecordEnd {
			t.Errorf("cut %d: location = record %d offset %d, want record 1 offset %d",
				cut, formatError.Record, formatError.Offset, firstRecordEnd)
		}
	}
}

func TestReadRecordRejectsOversizedLengths(t *testing.T) {
	data := encodeContainer(t, 1)

	oversizedManifest := append([]byte(nil), data...)
	// manifest_len sits after seq (8) and nonce (12).
	copy(oversizedManifest[PreambleSize+20:], []byte{0xff, 0xff, 0xff, 0xff})

	reader, err := NewReader(bytes.NewReader(oversizedManifest))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := reader.ReadRecord(); !errors.Is(err, ErrSchemaInvalid) {
		t.Fatalf("ReadRecord error = %v, want ErrSchemaInvalid", err)
	}
}

func TestWriteRecordValidates(t *testing.T) {
	record := testRecord(0)
	record.Ciphertext = make([]byte, segcipher.Overhead-1)
	if err := WriteRecord(io.Discard, record); !errors.Is(err, ErrSchemaInvalid) {
		t.Errorf("short ciphertext error = %v, want ErrSchemaInvalid", err)
	}

	record = testRecord(0)
	record.Manifest = nil
	if err := WriteRecord(io.Discard, record); !errors.Is(err, ErrSchemaInvalid) {
		t.Errorf("empty manifest error = %v, want ErrSchemaInvalid", err)
	}
}

func TestKeyIDText(t *testing.T) {
	id := NewKeyID()
	parsed, err := ParseKeyID(id.String())
	if err != nil {
		t.Fatalf("ParseKeyID: %v", err)
	}
	if parsed != id {
		t.Error("key id changed across text form")
	}
	if NewKeyID() == id {
		t.Error("NewKeyID repeated a value")
	}
	if _, err := ParseKeyID("not-a-uuid"); err == nil {
		t.Error("ParseKeyID accepted garbage")
	}
}
