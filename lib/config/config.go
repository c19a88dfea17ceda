// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads.
const EnvVar = "TRUSTEDGE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for workstations and test rigs.
	Development Environment = "development"
	// Production is for fielded capture devices and verifiers.
	Production Environment = "production"
)

// Config is the master configuration for the trustedge tools.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// Keys selects and configures the key backend.
	Keys KeysConfig `yaml:"keys"`

	// Wrap configures container construction.
	Wrap WrapConfig `yaml:"wrap"`

	// Verify configures the verification engine.
	Verify VerifyConfig `yaml:"verify"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Keys   *KeysConfig   `yaml:"keys,omitempty"`
	Wrap   *WrapConfig   `yaml:"wrap,omitempty"`
	Verify *VerifyConfig `yaml:"verify,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// KeysConfig configures the key backend.
type KeysConfig struct {
	// Backend is the registered backend name ("software", "memory").
	// Default: software
	Backend string `yaml:"backend"`

	// Directory holds device.key, device.pub, and the sealed master
	// secret for the software backend.
	// Default: ${HOME}/.trustedge/keys
	Directory string `yaml:"directory"`

	// PassphraseFile is the file (or "-" for stdin) holding the
	// passphrase that unseals the master secret. Empty means the
	// master secret is not available and wrap cannot derive keys.
	PassphraseFile string `yaml:"passphrase_file"`
}

// WrapConfig configures container construction.
type WrapConfig struct {
	// ChunkSize is the plaintext bytes per segment.
	// Default: 1 MiB
	ChunkSize int `yaml:"chunk_size"`

	// Algorithm is "chacha20-poly1305" or "aes-256-gcm".
	// Default: chacha20-poly1305
	Algorithm string `yaml:"algorithm"`

	// Profile labels archive containers (e.g. "cam.video", "generic").
	// Default: generic
	Profile string `yaml:"profile"`

	// ChunkDuration is the nominal capture time covered by one archive
	// segment, as a Go duration string.
	// Default: 2s
	ChunkDuration string `yaml:"chunk_duration"`

	// Workers bounds the sealing pool. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// VerifyConfig configures the verification engine.
type VerifyConfig struct {
	// DurationTolerance is how far a segment's declared duration may
	// exceed the nominal chunk duration before continuity fails.
	// Default: 500ms
	DurationTolerance string `yaml:"duration_tolerance"`

	// Workers bounds the per-segment check pool. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// LogConfig configures the command logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is "auto" (text on a terminal, JSON otherwise), "text",
	// or "json".
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration. It is the base that a
// config file is merged into, and the configuration used when no file
// is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Keys: KeysConfig{
			Backend:   "software",
			Directory: filepath.Join(homeDir, ".trustedge", "keys"),
		},
		Wrap: WrapConfig{
			ChunkSize:     1 << 20,
			Algorithm:     "chacha20-poly1305",
			Profile:       "generic",
			ChunkDuration: "2s",
		},
		Verify: VerifyConfig{
			DurationTolerance: "500ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the TRUSTEDGE_CONFIG environment
// variable. When it is unset, Load returns [Default] so the tools work
// out of the box on a development machine.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production verifiers log JSON for collection.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Keys != nil {
		if overrides.Keys.Backend != "" {
			c.Keys.Backend = overrides.Keys.Backend
		}
		if overrides.Keys.Directory != "" {
			c.Keys.Directory = overrides.Keys.Directory
		}
		if overrides.Keys.PassphraseFile != "" {
			c.Keys.PassphraseFile = overrides.Keys.PassphraseFile
		}
	}

	if overrides.Wrap != nil {
		if overrides.Wrap.ChunkSize != 0 {
			c.Wrap.ChunkSize = overrides.Wrap.ChunkSize
		}
		if overrides.Wrap.Algorithm != "" {
			c.Wrap.Algorithm = overrides.Wrap.Algorithm
		}
		if overrides.Wrap.Profile != "" {
			c.Wrap.Profile = overrides.Wrap.Profile
		}
		if overrides.Wrap.ChunkDuration != "" {
			c.Wrap.ChunkDuration = overrides.Wrap.ChunkDuration
		}
		if overrides.Wrap.Workers != 0 {
			c.Wrap.Workers = overrides.Wrap.Workers
		}
	}

	if overrides.Verify != nil {
		if overrides.Verify.DurationTolerance != "" {
			c.Verify.DurationTolerance = overrides.Verify.DurationTolerance
		}
		if overrides.Verify.Workers != 0 {
			c.Verify.Workers = overrides.Verify.Workers
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Keys.Directory = expandVars(c.Keys.Directory, vars)
	c.Keys.PassphraseFile = expandVars(c.Keys.PassphraseFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Keys.Backend == "" {
		errs = append(errs, errors.New("keys.backend is required"))
	}
	if c.Wrap.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("wrap.chunk_size must be positive, got %d", c.Wrap.ChunkSize))
	}
	if c.Wrap.Workers < 0 {
		errs = append(errs, errors.New("wrap.workers must not be negative"))
	}
	if c.Verify.Workers < 0 {
		errs = append(errs, errors.New("verify.workers must not be negative"))
	}
	if _, err := parseDuration("wrap.chunk_duration", c.Wrap.ChunkDuration); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("verify.duration_tolerance", c.Verify.DurationTolerance); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be auto, text, or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ChunkDuration returns the parsed wrap.chunk_duration.
func (c *Config) ChunkDuration() (time.Duration, error) {
	return parseDuration("wrap.chunk_duration", c.Wrap.ChunkDuration)
}

// DurationTolerance returns the parsed verify.duration_tolerance.
func (c *Config) DurationTolerance() (time.Duration, error) {
	return parseDuration("verify.duration_tolerance", c.Verify.DurationTolerance)
}

// LogLevel returns the slog level named by log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
