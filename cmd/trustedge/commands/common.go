// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/config"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/keys"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/verify"
)

// keyParams is the flag group shared by every command that loads
// configuration or keys.
type keyParams struct {
	ConfigFile     string `json:"config"          flag:"config"          desc:"configuration file (default: $TRUSTEDGE_CONFIG, then built-in defaults)"`
	KeyDirectory   string `json:"key_dir"         flag:"key-dir"         desc:"key directory (overrides keys.directory)"`
	Backend        string `json:"backend"         flag:"backend"         desc:"key backend (overrides keys.backend)"`
	PassphraseFile string `json:"passphrase_file" flag:"passphrase-file" desc:"file holding the master secret passphrase, - for stdin (overrides keys.passphrase_file)"`
}

// session is the loaded configuration and logger for one command run.
type session struct {
	config *config.Config
	logger *slog.Logger
}

// load reads configuration, applies flag overrides, and builds the
// command logger.
func (p *keyParams) load(command string) (*session, error) {
	var cfg *config.Config
	var err error
	if p.ConfigFile != "" {
		cfg, err = config.LoadFile(p.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, cli.UsageErrorf("loading configuration: %v", err)
	}

	if p.KeyDirectory != "" {
		cfg.Keys.Directory = p.KeyDirectory
	}
	if p.Backend != "" {
		cfg.Keys.Backend = p.Backend
	}
	if p.PassphraseFile != "" {
		cfg.Keys.PassphraseFile = p.PassphraseFile
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	logger, err := cli.NewCommandLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, cli.UsageErrorf("%v", err)
	}
	return &session{config: cfg, logger: logger.With("command", command)}, nil
}

// passphrase reads the configured passphrase file. It returns nil
// when none is configured.
func (s *session) passphrase() (*secret.Buffer, error) {
	if s.config.Keys.PassphraseFile == "" {
		return nil, nil
	}
	buffer, err := secret.ReadFromPath(s.config.Keys.PassphraseFile)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return buffer, nil
}

// openBackend opens the configured key backend. The caller must Close
// it.
func (s *session) openBackend() (keys.Backend, error) {
	passphrase, err := s.passphrase()
	if err != nil {
		return nil, err
	}
	if passphrase != nil {
		defer passphrase.Close()
	}
	backend, err := keys.Open(s.config.Keys.Backend, keys.Options{
		Directory:  s.config.Keys.Directory,
		Passphrase: passphrase,
		Logger:     s.logger,
	})
	if err != nil {
		if errors.Is(err, keys.ErrUnknownBackend) {
			return nil, cli.UsageErrorf("%v", err)
		}
		return nil, fmt.Errorf("opening %s key backend: %w", s.config.Keys.Backend, err)
	}
	return backend, nil
}

// exitError attaches the exit code for err's class. Errors that
// already carry a code pass through unchanged.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return err
	}
	return &cli.CodedError{Code: verify.Classify(err).ExitCode(), Err: err}
}

// openInput opens path for reading, with "-" meaning stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// atomicFile writes to a temporary file beside the destination and
// renames it into place on Commit. Abort removes the temporary file.
// A destination of "-" writes straight to stdout.
type atomicFile struct {
	io.Writer
	file        *os.File
	destination string
}

func createAtomic(destination string) (*atomicFile, error) {
	if destination == "-" {
		return &atomicFile{Writer: os.Stdout}, nil
	}
	if _, err := os.Lstat(destination); err == nil {
		return nil, fmt.Errorf("%s already exists", destination)
	}
	file, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".tmp-")
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	return &atomicFile{Writer: file, file: file, destination: destination}, nil
}

func (a *atomicFile) Commit() error {
	if a.file == nil {
		return nil
	}
	if err := a.file.Sync(); err != nil {
		a.Abort()
		return fmt.Errorf("syncing output: %w", err)
	}
	if err := a.file.Close(); err != nil {
		os.Remove(a.file.Name())
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(a.file.Name(), a.destination); err != nil {
		os.Remove(a.file.Name())
		return fmt.Errorf("renaming output into place: %w", err)
	}
	return nil
}

func (a *atomicFile) Abort() {
	if a.file == nil {
		return
	}
	a.file.Close()
	os.Remove(a.file.Name())
}
