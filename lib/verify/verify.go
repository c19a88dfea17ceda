// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/clock"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/stream"
)

// DefaultDurationTolerance is how far a segment's declared duration
// may exceed the nominal chunk duration.
const DefaultDurationTolerance = 500 * time.Millisecond

// ErrKeyRequired reports a stream verified without a key resolver.
var ErrKeyRequired = errors.New("verify: stream containers must be decrypted to verify the final segment; no key resolver given")

// Options configures a Verifier.
type Options struct {
	// PublicKey is the expected signing identity. Required.
	PublicKey ed25519.PublicKey

	// Keys resolves symmetric keys. Stream verification requires it:
	// without it a stream that otherwise checks out reports continuity
	// unknown with class internal. Archives are decrypted only when it
	// is set.
	Keys stream.KeyResolver

	// Workers bounds the per-segment pool. Zero means GOMAXPROCS.
	Workers int

	// DurationTolerance bounds archive segment durations. Zero means
	// DefaultDurationTolerance.
	DurationTolerance time.Duration

	// Clock times verification. Nil means the real clock.
	Clock clock.Clock

	// Logger receives verification events. Nil discards.
	Logger *slog.Logger
}

// Verifier checks containers against one signing identity.
type Verifier struct {
	options Options
}

// New returns a Verifier.
func New(options Options) (*Verifier, error) {
	if len(options.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verify: public key is %d bytes, want %d", len(options.PublicKey), ed25519.PublicKeySize)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.GOMAXPROCS(0)
	}
	if options.DurationTolerance == 0 {
		options.DurationTolerance = DefaultDurationTolerance
	}
	options.Clock = clock.Or(options.Clock)
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Verifier{options: options}, nil
}

// Path verifies the container at path: a directory is an archive, a
// regular file is a stream.
func (v *Verifier) Path(path string) *Report {
	start := v.options.Clock.Now()
	info, err := os.Stat(path)
	if err != nil {
		report := newReport(VariantStream)
		report.structural(fmt.Errorf("opening container: %w", err))
		return v.finish(report, start, path)
	}
	if info.IsDir() {
		return v.Archive(path)
	}
	file, err := os.Open(path)
	if err != nil {
		report := newReport(VariantStream)
		report.structural(fmt.Errorf("opening container: %w", err))
		return v.finish(report, start, path)
	}
	defer file.Close()
	return v.verifyStream(file, path)
}

func (v *Verifier) finish(report *Report, start time.Time, name string) *Report {
	report.VerifyTimeMillis = clock.Since(v.options.Clock, start).Milliseconds()
	level := slog.LevelInfo
	if report.Class != ClassNone {
		level = slog.LevelWarn
	}
	v.options.Logger.Log(context.Background(), level, "verified container",
		"container", name,
		"variant", report.Variant,
		"signature", report.Signature,
		"continuity", report.Continuity,
		"class", report.Class,
		"segments", report.Segments,
		"verify_time_ms", report.VerifyTimeMillis,
	)
	return report
}

// parallel runs work(i) for i in [0, count) on up to workers
// goroutines and waits for all of them.
func parallel(count, workers int, work func(index int)) {
	var waitGroup sync.WaitGroup
	indices := make(chan int)
	for range min(workers, count) {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for index := range indices {
				work(index)
			}
		}()
	}
	for index := range count {
		indices <- index
	}
	close(indices)
	waitGroup.Wait()
}
