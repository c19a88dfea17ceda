// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/chain"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/clock"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/digest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/segcipher"
)

const (
	// ManifestFile is the archive-relative manifest path.
	ManifestFile = "manifest.json"

	// SignatureFile is the archive-relative detached signature path.
	SignatureFile = "signatures/manifest.sig"

	// ChunksDir holds the chunk files.
	ChunksDir = "chunks"

	// DefaultChunkSize is used when Options.ChunkSize is zero.
	DefaultChunkSize = 1 << 20

	// DefaultChunkDuration is used when Options.ChunkDuration is zero.
	DefaultChunkDuration = 2 * time.Second

	// DefaultProfile is used when Options.Profile is empty.
	DefaultProfile = "generic"

	// MaxSegments is bounded by the five-digit chunk file names.
	MaxSegments = 100000
)

var (
	// ErrEmpty means there was no plaintext to wrap.
	ErrEmpty = errors.New("archive: no segments")

	// ErrExists means the destination directory already exists.
	ErrExists = errors.New("archive: destination exists")

	// ErrTooManySegments means the input needs more chunk files than
	// the naming scheme allows.
	ErrTooManySegments = errors.New("archive: too many segments")
)

// Options configures archive construction.
type Options struct {
	// Algorithm selects the AEAD. Zero means ChaCha20Poly1305.
	Algorithm segcipher.Algorithm

	// ChunkSize is the plaintext bytes per chunk. Zero means
	// DefaultChunkSize.
	ChunkSize int

	// ChunkDuration is the nominal capture time per full chunk,
	// recorded as approx_duration_s. A short final chunk is given a
	// proportional duration. Zero means DefaultChunkDuration.
	ChunkDuration time.Duration

	// Profile names the capture profile. Empty means DefaultProfile.
	Profile string

	// Device describes the capture device. PublicKey is filled from
	// the signer and any value given here is ignored.
	Device manifest.Device

	// Capture describes the session. A zero StartedAt means the
	// clock's current time; EndedAt is derived from the durations.
	Capture manifest.Capture

	// KeyID names the symmetric key. Zero means a new random id.
	KeyID format.KeyID

	// Claims is recorded verbatim in the manifest.
	Claims map[string]any

	// Workers bounds the sealing pool. Zero means GOMAXPROCS.
	Workers int

	// Clock supplies the capture start time. Nil means the real clock.
	Clock clock.Clock

	// Logger receives progress events. Nil discards.
	Logger *slog.Logger
}

func (o *Options) normalize() error {
	if o.Algorithm == 0 {
		o.Algorithm = segcipher.ChaCha20Poly1305
	}
	if !o.Algorithm.Valid() {
		return fmt.Errorf("%w: %d", segcipher.ErrUnknownAlgorithm, o.Algorithm)
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkSize < 0 || o.ChunkSize > format.MaxCiphertextSize-segcipher.Overhead {
		return fmt.Errorf("archive: chunk size %d out of range", o.ChunkSize)
	}
	if o.ChunkDuration == 0 {
		o.ChunkDuration = DefaultChunkDuration
	}
	if o.ChunkDuration < 0 {
		return fmt.Errorf("archive: negative chunk duration %s", o.ChunkDuration)
	}
	if o.Profile == "" {
		o.Profile = DefaultProfile
	}
	if o.Device.ID == "" {
		return errors.New("archive: device id is required")
	}
	if o.KeyID == (format.KeyID{}) {
		o.KeyID = format.NewKeyID()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	o.Clock = clock.Or(o.Clock)
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Capture.StartedAt.IsZero() {
		o.Capture.StartedAt = o.Clock.Now().UTC()
	}
	if o.Capture.Timezone == "" {
		o.Capture.Timezone = "UTC"
	}
	return nil
}

// sealedChunk is the result of sealing one chunk, before the chain
// position is known.
type sealedChunk struct {
	hash           digest.Digest
	plaintextHash  digest.Digest
	plaintextBytes int
	size           int64
}

// Write reads all of source and writes a signed archive at directory,
// which must not exist. The key is borrowed and NOT closed.
func Write(directory string, source io.Reader, signer crypto.Signer, key *secret.Buffer, options Options) (*manifest.Archive, error) {
	if err := options.normalize(); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(directory); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, directory)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking destination: %w", err)
	}

	publicKey, err := manifest.PublicKeyOf(signer)
	if err != nil {
		return nil, err
	}
	options.Device.PublicKey = manifest.FormatPublicKey(publicKey)

	cipher, err := segcipher.New(key, options.Algorithm)
	if err != nil {
		return nil, err
	}
	header := format.Header{
		Version:    format.HeaderVersion,
		Algorithm:  options.Algorithm,
		KeyID:      options.KeyID,
		DeviceHash: digest.HashDevice(options.Device.ID),
		ChunkSize:  uint32(options.ChunkSize),
	}
	if _, err := rand.Read(header.NoncePrefix[:]); err != nil {
		return nil, fmt.Errorf("generating nonce prefix: %w", err)
	}
	contextHash, err := manifest.ContextHash(options.Profile, options.Device)
	if err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(filepath.Dir(directory), "."+filepath.Base(directory)+".tmp-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()
	for _, sub := range []string{ChunksDir, "signatures"} {
		if err := os.Mkdir(filepath.Join(staging, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	w := &chunkWriter{
		staging:     staging,
		cipher:      cipher,
		header:      header,
		headerHash:  header.Hash(),
		contextHash: contextHash,
	}
	chunks, err := w.sealAll(source, options)
	if err != nil {
		return nil, err
	}

	archive := &manifest.Archive{
		TrstVersion: manifest.ArchiveVersion,
		Profile:     options.Profile,
		Device:      options.Device,
		Capture:     options.Capture,
		Chunk: manifest.ChunkInfo{
			ApproxDurationSeconds: options.ChunkDuration.Seconds(),
			SizeBytes:             options.ChunkSize,
		},
		Header: manifest.NewArchiveHeader(header),
		Claims: options.Claims,
	}

	accumulator := chain.New(w.headerHash)
	var elapsed float64
	for index, sealed := range chunks {
		duration := options.ChunkDuration.Seconds() * float64(sealed.plaintextBytes) / float64(options.ChunkSize)
		archive.Segments = append(archive.Segments, manifest.ArchiveSegment{
			Index:           uint64(index),
			ChunkFile:       manifest.ChunkFileName(uint64(index)),
			Hash:            sealed.hash,
			PlaintextHash:   sealed.plaintextHash,
			StartTime:       elapsed,
			DurationSeconds: duration,
			ContinuityHash:  accumulator.Append(sealed.hash),
			Size:            sealed.size,
		})
		elapsed += duration
	}
	archive.ChainTip = accumulator.State()
	archive.Capture.EndedAt = archive.Capture.StartedAt.Add(time.Duration(elapsed * float64(time.Second)))

	signature, err := manifest.SignArchive(archive, signer)
	if err != nil {
		return nil, err
	}
	encoded, err := archive.Marshal()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(staging, ManifestFile), encoded, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, SignatureFile), []byte(signature+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing signature: %w", err)
	}

	if err := os.Rename(staging, directory); err != nil {
		return nil, fmt.Errorf("moving archive into place: %w", err)
	}
	committed = true

	options.Logger.Info("wrote archive container",
		"directory", directory,
		"segments", len(archive.Segments),
		"duration_s", elapsed,
		"profile", options.Profile,
		"device_id", options.Device.ID,
		"header_hash", w.headerHash.String(),
	)
	return archive, nil
}

// chunkWriter seals chunks into the staging directory. Its fields are
// read-only after construction, so seal runs concurrently.
type chunkWriter struct {
	staging     string
	cipher      *segcipher.Cipher
	header      format.Header
	headerHash  digest.Digest
	contextHash digest.Digest
}

func (w *chunkWriter) seal(index uint64, plaintext []byte) (sealedChunk, error) {
	nonce := segcipher.Nonce(w.header.NoncePrefix, index)
	aad := segcipher.AAD(w.headerHash, index, nonce, w.contextHash)
	sealed := w.cipher.Seal(nonce, plaintext, aad)

	path := filepath.Join(w.staging, filepath.FromSlash(manifest.ChunkFileName(index)))
	if err := os.WriteFile(path, sealed, 0o644); err != nil {
		return sealedChunk{}, fmt.Errorf("writing chunk %d: %w", index, err)
	}
	return sealedChunk{
		hash:           digest.HashSegment(sealed),
		plaintextHash:  digest.HashPlaintext(plaintext),
		plaintextBytes: len(plaintext),
		size:           int64(len(sealed)),
	}, nil
}

// sealAll reads source in batches and seals each batch on the worker
// pool. Results come back in index order.
func (w *chunkWriter) sealAll(source io.Reader, options Options) ([]sealedChunk, error) {
	window := options.Workers * 4
	var results []sealedChunk
	for {
		var batch [][]byte
		for len(batch) < window {
			chunk, err := readChunk(source, options.ChunkSize)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			batch = append(batch, chunk)
		}
		if len(batch) == 0 {
			break
		}
		if len(results)+len(batch) > MaxSegments {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManySegments, MaxSegments)
		}

		sealed, err := w.sealBatch(uint64(len(results)), batch, options.Workers)
		if err != nil {
			return nil, err
		}
		results = append(results, sealed...)
		options.Logger.Debug("sealed archive batch", "chunks", len(batch), "total", len(results))
		if len(batch) < window {
			break
		}
	}
	if len(results) == 0 {
		return nil, ErrEmpty
	}
	return results, nil
}

func (w *chunkWriter) sealBatch(first uint64, batch [][]byte, workers int) ([]sealedChunk, error) {
	results := make([]sealedChunk, len(batch))
	var (
		waitGroup sync.WaitGroup
		errorOnce sync.Once
		firstErr  error
	)
	indices := make(chan int)
	for range min(workers, len(batch)) {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for position := range indices {
				sealed, err := w.seal(first+uint64(position), batch[position])
				if err != nil {
					errorOnce.Do(func() { firstErr = err })
					continue
				}
				results[position] = sealed
			}
		}()
	}
	for position := range batch {
		indices <- position
	}
	close(indices)
	waitGroup.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
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
