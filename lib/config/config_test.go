// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trustedge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Keys.Backend != "software" {
		t.Errorf("expected keys.backend=software, got %s", cfg.Keys.Backend)
	}
	if cfg.Wrap.ChunkSize != 1<<20 {
		t.Errorf("expected wrap.chunk_size=1MiB, got %d", cfg.Wrap.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_WithoutEnvReturnsDefault(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Wrap.Profile != "generic" {
		t.Errorf("expected default profile, got %s", cfg.Wrap.Profile)
	}
}

func TestLoad_WithEnv(t *testing.T) {
	path := writeConfig(t, `
keys:
  directory: /test/keys
wrap:
  chunk_size: 4096
`)
	t.Setenv(EnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Keys.Directory != "/test/keys" {
		t.Errorf("expected keys.directory=/test/keys, got %s", cfg.Keys.Directory)
	}
	if cfg.Wrap.ChunkSize != 4096 {
		t.Errorf("expected wrap.chunk_size=4096, got %d", cfg.Wrap.ChunkSize)
	}
	// Unset fields keep their defaults.
	if cfg.Wrap.Algorithm != "chacha20-poly1305" {
		t.Errorf("expected default algorithm, got %s", cfg.Wrap.Algorithm)
	}
}

func TestLoadFile_EmptyFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile failed on empty file: %v", err)
	}
	if cfg.Keys.Backend != "software" {
		t.Errorf("expected default backend, got %s", cfg.Keys.Backend)
	}
}

func TestLoadFile_UnknownField(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "wrap:\n  chunk_sise: 10\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
wrap:
  profile: generic
production:
  wrap:
    profile: cam.video
    workers: 2
  verify:
    duration_tolerance: 250ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Wrap.Profile != "cam.video" {
		t.Errorf("expected override profile=cam.video, got %s", cfg.Wrap.Profile)
	}
	if cfg.Wrap.Workers != 2 {
		t.Errorf("expected override workers=2, got %d", cfg.Wrap.Workers)
	}
	tolerance, err := cfg.DurationTolerance()
	if err != nil {
		t.Fatalf("DurationTolerance: %v", err)
	}
	if tolerance != 250*time.Millisecond {
		t.Errorf("expected tolerance=250ms, got %v", tolerance)
	}
}

func TestProductionDefaultsToJSONLogs(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json in production, got %s", cfg.Log.Format)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("TRUSTEDGE_TEST_KEYS", "/srv/keys")
	path := writeConfig(t, `
keys:
  directory: ${TRUSTEDGE_TEST_KEYS}/device
  passphrase_file: ${TRUSTEDGE_TEST_UNSET:-/etc/trustedge/passphrase}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Keys.Directory != "/srv/keys/device" {
		t.Errorf("expected expanded directory, got %s", cfg.Keys.Directory)
	}
	if cfg.Keys.PassphraseFile != "/etc/trustedge/passphrase" {
		t.Errorf("expected default passphrase path, got %s", cfg.Keys.PassphraseFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"zero chunk size", func(c *Config) { c.Wrap.ChunkSize = 0 }, "wrap.chunk_size"},
		{"bad duration", func(c *Config) { c.Wrap.ChunkDuration = "two seconds" }, "wrap.chunk_duration"},
		{"negative tolerance", func(c *Config) { c.Verify.DurationTolerance = "-1s" }, "verify.duration_tolerance"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no backend", func(c *Config) { c.Keys.Backend = "" }, "keys.backend"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	level, err := cfg.LogLevel()
	if err != nil {
		t.Fatalf("LogLevel: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", level)
	}
}
