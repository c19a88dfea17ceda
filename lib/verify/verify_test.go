// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/archive"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/clock"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/testutil"
)

type fixture struct {
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	key        *secret.Buffer
	clock      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	publicKey, privateKey := testutil.SigningKey(t, "verify device")
	return &fixture{
		publicKey:  publicKey,
		privateKey: privateKey,
		key:        testutil.SymmetricKey(t, "verify key"),
		clock:      clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) verifier(t *testing.T, publicKey ed25519.PublicKey, withKey bool) *Verifier {
	t.Helper()
	options := Options{PublicKey: publicKey, Workers: 3, Clock: f.clock}
	if withKey {
		options.Keys = stream.StaticKey(f.key)
	}
	v, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func (f *fixture) wrapStream(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	var container bytes.Buffer
	_, err := stream.Wrap(&container, bytes.NewReader(plaintext), f.privateKey, f.key, stream.Options{
		ChunkSize: 4096,
		DeviceID:  "cam-3",
		Metadata:  map[string]any{"profile": "cam.video", "device_id": "cam-3"},
		Workers:   2,
		Clock:     f.clock,
	})
	if err != nil {
		t.Fatalf("stream.Wrap: %v", err)
	}
	return container.Bytes()
}

func (f *fixture) writeArchive(t *testing.T, plaintext []byte) string {
	t.Helper()
	directory := filepath.Join(t.TempDir(), "capture.trst")
	_, err := archive.Write(directory, bytes.NewReader(plaintext), f.privateKey, f.key, archive.Options{
		ChunkSize:     4096,
		ChunkDuration: 2 * time.Second,
		Profile:       "cam.video",
		Device:        manifest.Device{ID: "cam-3"},
		Workers:       2,
		Clock:         f.clock,
	})
	if err != nil {
		t.Fatalf("archive.Write: %v", err)
	}
	return directory
}

// splitRecords returns the preamble and each raw record of container.
func splitRecords(t *testing.T, container []byte) ([]byte, [][]byte) {
	t.Helper()
	reader, err := format.NewReader(bytes.NewReader(container))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var raw [][]byte
	for {
		start := reader.Offset()
		if _, err := reader.ReadRecord(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("ReadRecord: %v", err)
		}
		raw = append(raw, container[start:reader.Offset()])
	}
	return container[:format.PreambleSize], raw
}

func join(preamble []byte, raw ...[]byte) []byte {
	return bytes.Join(append([][]byte{preamble}, raw...), nil)
}

func TestStreamPasses(t *testing.T) {
	f := newFixture(t)
	container := f.wrapStream(t, testutil.Payload(64<<10, 1))

	report := f.verifier(t, f.publicKey, true).Stream(bytes.NewReader(container))
	if !report.OK() || report.ExitCode() != ExitOK {
		t.Fatalf("report = %+v", report)
	}
	if report.Segments != 16 {
		t.Errorf("segments = %d, want 16", report.Segments)
	}
	if report.Variant != VariantStream || report.Profile != "cam.video" || report.DeviceID != "cam-3" {
		t.Errorf("variant/profile/device = %s/%s/%s", report.Variant, report.Profile, report.DeviceID)
	}
	if len(report.Failures) != 0 {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestStreamWithoutKeyNeverPasses(t *testing.T) {
	f := newFixture(t)
	container := f.wrapStream(t, testutil.Payload(64<<10, 1))

	report := f.verifier(t, f.publicKey, false).Stream(bytes.NewReader(container))
	if report.OK() {
		t.Fatalf("stream verified without a key resolver: %+v", report)
	}
	if report.Signature != Pass || report.Continuity != Unknown {
		t.Errorf("signature/continuity = %s/%s, want pass/unknown", report.Signature, report.Continuity)
	}
	if report.Class != ClassInternal || report.ExitCode() != ExitInternal {
		t.Errorf("class = %s, exit = %d, want internal/%d", report.Class, report.ExitCode(), ExitInternal)
	}
	if report.Error != ErrKeyRequired.Error() {
		t.Errorf("error = %q, want %q", report.Error, ErrKeyRequired.Error())
	}
	if report.Segments != 16 {
		t.Errorf("segments = %d, want 16", report.Segments)
	}
}

func TestStreamFailures(t *testing.T) {
	f := newFixture(t)
	container := f.wrapStream(t, testutil.Payload(4*4096, 2))
	preamble, raw := splitRecords(t, container)
	otherPublic, _ := testutil.SigningKey(t, "not the device")

	// Last byte of record 1 is the end of its AEAD tag.
	middleCiphertext := format.PreambleSize + len(raw[0]) + len(raw[1]) - 1

	tests := []struct {
		name       string
		container  []byte
		publicKey  ed25519.PublicKey
		withKey    bool
		signature  Status
		continuity Status
		class      Class
		exit       int
		check      func(t *testing.T, report *Report)
	}{
		{
			name: "wrong public key", container: container, publicKey: otherPublic,
			signature: Fail, continuity: Skip, class: ClassSignature, exit: ExitSignature,
		},
		{
			name: "flipped manifest byte", container: testutil.FlipByte(container, format.PreambleSize+30), publicKey: f.publicKey,
			signature: Fail, continuity: Skip, class: ClassSignature, exit: ExitSignature,
		},
		{
			name: "flipped ciphertext with key", container: testutil.FlipByte(container, middleCiphertext), publicKey: f.publicKey, withKey: true,
			signature: Pass, continuity: Fail, class: ClassAEAD, exit: ExitContinuity,
		},
		{
			name: "flipped ciphertext without key", container: testutil.FlipByte(container, middleCiphertext), publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: wantViolation(chain.ChainMismatch),
		},
		{
			name: "flipped final ciphertext with key", container: testutil.FlipByte(container, len(container)-1), publicKey: f.publicKey, withKey: true,
			signature: Pass, continuity: Fail, class: ClassAEAD, exit: ExitContinuity,
		},
		{
			name: "flipped final ciphertext without key", container: testutil.FlipByte(container, len(container)-1), publicKey: f.publicKey,
			signature: Pass, continuity: Unknown, class: ClassInternal, exit: ExitInternal,
		},
		{
			name: "truncated tail", container: container[:len(container)-7], publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: wantViolation(chain.UnexpectedEnd),
		},
		{
			name: "final record removed", container: join(preamble, raw[0], raw[1], raw[2]), publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: wantViolation(chain.UnexpectedEnd),
		},
		{
			name: "middle record removed", container: join(preamble, raw[0], raw[2], raw[3]), publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: func(t *testing.T, report *Report) {
				if report.FirstGapIndex == nil || *report.FirstGapIndex != 1 {
					t.Errorf("first_gap_index = %v, want 1", report.FirstGapIndex)
				}
			},
		},
		{
			name: "records swapped", container: join(preamble, raw[0], raw[2], raw[1], raw[3]), publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: func(t *testing.T, report *Report) {
				if report.OutOfOrder == nil || report.OutOfOrder.Expected != 3 || report.OutOfOrder.Found != 1 {
					t.Errorf("out_of_order = %+v, want {3 1}", report.OutOfOrder)
				}
			},
		},
		{
			name: "record after final", container: join(preamble, raw[0], raw[1], raw[2], raw[3], raw[3]), publicKey: f.publicKey,
			signature: Pass, continuity: Fail, class: ClassContinuity, exit: ExitContinuity,
			check: wantViolation(chain.ChainMismatch),
		},
		{
			name: "bad magic", container: append([]byte("XXXX"), container[4:]...), publicKey: f.publicKey,
			signature: Unknown, continuity: Unknown, class: ClassFormat, exit: ExitStructural,
		},
		{
			name: "truncated header", container: container[:20], publicKey: f.publicKey,
			signature: Unknown, continuity: Unknown, class: ClassFormat, exit: ExitStructural,
		},
		{
			name: "header only", container: preamble, publicKey: f.publicKey,
			signature: Unknown, continuity: Unknown, class: ClassFormat, exit: ExitStructural,
		},
		{
			name: "first record truncated", container: container[:format.PreambleSize+40], publicKey: f.publicKey,
			signature: Unknown, continuity: Unknown, class: ClassFormat, exit: ExitStructural,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			report := f.verifier(t, test.publicKey, test.withKey).Stream(bytes.NewReader(test.container))
			if report.Signature != test.signature || report.Continuity != test.continuity {
				t.Errorf("signature/continuity = %s/%s, want %s/%s", report.Signature, report.Continuity, test.signature, test.continuity)
			}
			if report.Class != test.class {
				t.Errorf("class = %s, want %s (error %q)", report.Class, test.class, report.Error)
			}
			if report.ExitCode() != test.exit {
				t.Errorf("exit code = %d, want %d", report.ExitCode(), test.exit)
			}
			if report.Error == "" {
				t.Error("failing report has no error text")
			}
			if test.check != nil {
				test.check(t, report)
			}
		})
	}
}

func TestStreamWrongSymmetricKey(t *testing.T) {
	f := newFixture(t)
	container := f.wrapStream(t, testutil.Payload(9000, 3))

	wrong := testutil.SymmetricKey(t, "wrong")
	v, err := New(Options{PublicKey: f.publicKey, Keys: stream.StaticKey(wrong)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report := v.Stream(bytes.NewReader(container))
	if report.Signature != Pass || report.Class != ClassAEAD || report.ExitCode() != ExitContinuity {
		t.Fatalf("report = %+v", report)
	}
	aeadFailures := 0
	for _, failure := range report.Failures {
		if failure.Kind == string(ClassAEAD) {
			aeadFailures++
		}
	}
	if aeadFailures != 3 {
		t.Errorf("aead failures = %d, want one per record (3)", aeadFailures)
	}
}

func TestArchivePassesAndMissingChunkIsIO(t *testing.T) {
	f := newFixture(t)
	directory := f.writeArchive(t, testutil.Payload(64<<10, 4))

	report := f.verifier(t, f.publicKey, false).Path(directory)
	if !report.OK() || report.ExitCode() != ExitOK {
		t.Fatalf("report = %+v", report)
	}
	if report.Segments != 16 {
		t.Errorf("segments = %d, want 16", report.Segments)
	}
	if report.DurationSeconds != 32 {
		t.Errorf("duration_s = %v, want 32", report.DurationSeconds)
	}
	if report.Variant != VariantArchive || report.Profile != "cam.video" || report.DeviceID != "cam-3" {
		t.Errorf("variant/profile/device = %s/%s/%s", report.Variant, report.Profile, report.DeviceID)
	}

	if err := os.Remove(filepath.Join(directory, "chunks", "00007.bin")); err != nil {
		t.Fatalf("removing chunk: %v", err)
	}
	report = f.verifier(t, f.publicKey, false).Path(directory)
	if report.Class != ClassIO || report.ExitCode() != ExitStructural {
		t.Fatalf("class = %s, exit = %d, want io/12", report.Class, report.ExitCode())
	}
	if report.Signature != Pass || report.Continuity != Unknown {
		t.Errorf("signature/continuity = %s/%s, want pass/unknown", report.Signature, report.Continuity)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != "missing_chunk" || *report.Failures[0].Index != 7 {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestArchiveUnlistedChunk(t *testing.T) {
	f := newFixture(t)
	directory := f.writeArchive(t, testutil.Payload(64<<10, 9))
	writeFile(t, directory, "chunks/00016.bin", []byte("stray"))

	report := f.verifier(t, f.publicKey, false).Archive(directory)
	if !report.OK() || report.ExitCode() != ExitOK {
		t.Fatalf("stray file failed the archive: %+v", report)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %+v, want one unlisted_chunk", report.Failures)
	}
	if failure := report.Failures[0]; failure.Kind != "unlisted_chunk" || failure.Index != nil || !strings.Contains(failure.Detail, "chunks/00016.bin") {
		t.Errorf("failure = %+v", failure)
	}
}

func TestArchiveWithKeyPasses(t *testing.T) {
	f := newFixture(t)
	directory := f.writeArchive(t, testutil.Payload(10_000, 5))

	report := f.verifier(t, f.publicKey, true).Archive(directory)
	if !report.OK() {
		t.Fatalf("report = %+v", report)
	}
}

func TestArchiveFailures(t *testing.T) {
	otherPublic, _ := testutil.SigningKey(t, "not the device")

	tests := []struct {
		name       string
		mutate     func(t *testing.T, f *fixture, directory string)
		publicKey  func(f *fixture) ed25519.PublicKey
		signature  Status
		continuity Status
		class      Class
		check      func(t *testing.T, report *Report)
	}{
		{
			name:      "wrong public key",
			publicKey: func(*fixture) ed25519.PublicKey { return otherPublic },
			signature: Fail, continuity: Skip, class: ClassSignature,
		},
		{
			name:      "swapped chunks",
			mutate:    func(t *testing.T, _ *fixture, directory string) { swapFiles(t, directory, "chunks/00001.bin", "chunks/00002.bin") },
			signature: Pass, continuity: Fail, class: ClassContinuity,
			check: func(t *testing.T, report *Report) {
				mismatches := 0
				for _, failure := range report.Failures {
					if failure.Kind == chain.HashMismatch.String() {
						mismatches++
					}
				}
				if mismatches != 2 {
					t.Errorf("hash mismatches = %d, want 2", mismatches)
				}
			},
		},
		{
			name: "detached signature replaced",
			mutate: func(t *testing.T, f *fixture, directory string) {
				signature, err := manifest.Sign(f.privateKey, manifest.ArchiveDomain, []byte("other"))
				if err != nil {
					t.Fatalf("Sign: %v", err)
				}
				writeFile(t, directory, archive.SignatureFile, []byte(manifest.FormatSignature(signature)))
			},
			signature: Fail, continuity: Skip, class: ClassSignature,
		},
		{
			name: "declared duration too long",
			mutate: func(t *testing.T, f *fixture, directory string) {
				resign(t, f, directory, func(a *manifest.Archive) { a.Segments[1].DurationSeconds = 2.6 })
			},
			signature: Pass, continuity: Fail, class: ClassContinuity,
			check: wantViolation(chain.UnexpectedEnd),
		},
		{
			name: "duration within tolerance",
			mutate: func(t *testing.T, f *fixture, directory string) {
				resign(t, f, directory, func(a *manifest.Archive) { a.Segments[1].DurationSeconds = 2.4 })
			},
			signature: Pass, continuity: Pass, class: ClassNone,
		},
		{
			name: "placeholder previous state",
			mutate: func(t *testing.T, f *fixture, directory string) {
				resign(t, f, directory, func(a *manifest.Archive) { a.Segments[2].ContinuityHash = a.Segments[1].ContinuityHash })
			},
			signature: Pass, continuity: Fail, class: ClassContinuity,
			check: wantViolation(chain.ChainMismatch),
		},
		{
			name:      "manifest missing",
			mutate:    func(t *testing.T, _ *fixture, directory string) { removeFile(t, directory, archive.ManifestFile) },
			signature: Unknown, continuity: Unknown, class: ClassIO,
		},
		{
			name:      "manifest not json",
			mutate:    func(t *testing.T, _ *fixture, directory string) { writeFile(t, directory, archive.ManifestFile, []byte("{")) },
			signature: Unknown, continuity: Unknown, class: ClassFormat,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			directory := f.writeArchive(t, testutil.Payload(4*4096, 6))
			if test.mutate != nil {
				test.mutate(t, f, directory)
			}
			publicKey := f.publicKey
			if test.publicKey != nil {
				publicKey = test.publicKey(f)
			}
			report := f.verifier(t, publicKey, false).Archive(directory)
			if report.Signature != test.signature || report.Continuity != test.continuity {
				t.Errorf("signature/continuity = %s/%s, want %s/%s", report.Signature, report.Continuity, test.signature, test.continuity)
			}
			if report.Class != test.class {
				t.Errorf("class = %s, want %s (error %q)", report.Class, test.class, report.Error)
			}
			if test.check != nil {
				test.check(t, report)
			}
		})
	}
}

func TestArchiveWrongSymmetricKey(t *testing.T) {
	f := newFixture(t)
	directory := f.writeArchive(t, testutil.Payload(5000, 7))

	v, err := New(Options{PublicKey: f.publicKey, Keys: stream.StaticKey(testutil.SymmetricKey(t, "wrong"))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report := v.Archive(directory)
	if report.Signature != Pass || report.Class != ClassAEAD || report.ExitCode() != ExitContinuity {
		t.Fatalf("report = %+v", report)
	}
}

func TestReportJSON(t *testing.T) {
	f := newFixture(t)
	f.clock.SetStep(3 * time.Millisecond)
	container := f.wrapStream(t, testutil.Payload(8192, 8))
	_, raw := splitRecords(t, container)
	preamble := container[:format.PreambleSize]

	report := f.verifier(t, f.publicKey, false).Stream(bytes.NewReader(join(preamble, raw[1])))
	encoded, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"signature", "continuity", "segments", "duration_s", "first_gap_index", "error", "verify_time_ms", "class", "variant", "failures"} {
		if _, exists := fields[key]; !exists {
			t.Errorf("report JSON lacks %q: %s", key, encoded)
		}
	}
	if _, exists := fields["out_of_order"]; exists {
		t.Errorf("report JSON has out_of_order without a reorder: %s", encoded)
	}
	if fields["verify_time_ms"].(float64) <= 0 {
		t.Errorf("verify_time_ms = %v, want positive with a stepping clock", fields["verify_time_ms"])
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		class Class
		want  int
	}{
		{ClassNone, 0},
		{ClassSignature, 10},
		{ClassContinuity, 11},
		{ClassAEAD, 11},
		{ClassFormat, 12},
		{ClassIO, 12},
		{ClassInternal, 14},
	}
	for _, test := range tests {
		if got := (&Report{Class: test.class}).ExitCode(); got != test.want {
			t.Errorf("ExitCode(%s) = %d, want %d", test.class, got, test.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{nil, ClassNone},
		{fmt.Errorf("wrapped: %w", manifest.ErrSignature), ClassSignature},
		{stream.ErrBinding, ClassSignature},
		{segcipher.ErrAuth, ClassAEAD},
		{segcipher.ErrNonceMismatch, ClassAEAD},
		{&chain.Violation{Kind: chain.Gap}, ClassContinuity},
		{&format.Error{Kind: format.Truncated, Record: 2}, ClassContinuity},
		{&format.Error{Kind: format.Truncated, Record: format.HeaderRecord}, ClassFormat},
		{&format.Error{Kind: format.BadMagic, Record: format.HeaderRecord}, ClassFormat},
		{manifest.ErrInvalid, ClassFormat},
		{&os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, ClassIO},
		{errors.New("something else"), ClassInternal},
	}
	for _, test := range tests {
		if got := Classify(test.err); got != test.want {
			t.Errorf("Classify(%v) = %s, want %s", test.err, got, test.want)
		}
	}
}

func TestNewRejectsBadPublicKey(t *testing.T) {
	if _, err := New(Options{PublicKey: ed25519.PublicKey{1, 2, 3}}); err == nil {
		t.Error("New accepted a 3-byte public key")
	}
}

func wantViolation(kind chain.Kind) func(t *testing.T, report *Report) {
	return func(t *testing.T, report *Report) {
		t.Helper()
		for _, failure := range report.Failures {
			if failure.Kind == kind.String() {
				return
			}
		}
		t.Errorf("no %s failure in %+v", kind, report.Failures)
	}
}

// resign edits manifest.json and signs it again with the device key,
// producing an archive whose signature is valid but whose content
// was doctored.
func resign(t *testing.T, f *fixture, directory string, edit func(*manifest.Archive)) {
	t.Helper()
	container, err := archive.Load(directory)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	edited := container.Manifest
	edit(edited)
	signature, err := manifest.SignArchive(edited, f.privateKey)
	if err != nil {
		t.Fatalf("SignArchive: %v", err)
	}
	encoded, err := edited.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	writeFile(t, directory, archive.ManifestFile, encoded)
	writeFile(t, directory, archive.SignatureFile, []byte(signature+"\n"))
}

func writeFile(t *testing.T, directory, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(directory, filepath.FromSlash(name)), data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func removeFile(t *testing.T, directory, name string) {
	t.Helper()
	if err := os.Remove(filepath.Join(directory, filepath.FromSlash(name))); err != nil {
		t.Fatalf("removing %s: %v", name, err)
	}
}

func swapFiles(t *testing.T, directory, a, b string) {
	t.Helper()
	pathA := filepath.Join(directory, filepath.FromSlash(a))
	pathB := filepath.Join(directory, filepath.FromSlash(b))
	dataA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("reading %s: %v", a, err)
	}
	dataB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("reading %s: %v", b, err)
	}
	writeFile(t, directory, a, dataB)
	writeFile(t, directory, b, dataA)
}
