// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/format"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
)

// These variables are set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/TrustEdge-Labs/trustedge-sub002/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// BuildInfo is the machine-readable form of the version output.
type BuildInfo struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	Dirty           bool   `json:"dirty"`
	BuildTime       string `json:"build_time"`
	Go              string `json:"go"`
	Platform        string `json:"platform"`
	WireVersion     uint8  `json:"wire_version"`
	HeaderVersion   uint8  `json:"header_version"`
	ArchiveVersion  string `json:"archive_version"`
	ManifestVersion uint8  `json:"manifest_version"`
}

// Current returns the build and container format versions.
func Current() BuildInfo {
	return BuildInfo{
		Version:         Version,
		Commit:          GitCommit,
		Dirty:           GitDirty == "true",
		BuildTime:       BuildTime,
		Go:              runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		WireVersion:     format.WireVersion,
		HeaderVersion:   format.HeaderVersion,
		ArchiveVersion:  manifest.ArchiveVersion,
		ManifestVersion: manifest.SegmentVersion,
	}
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version and
// the container formats this build understands.
func Full() string {
	info := Current()
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s\n  Stream format: v%d (header v%d, manifest v%d)\n  Archive format: %s",
		Info(), info.Go, info.Platform, info.WireVersion, info.HeaderVersion, info.ManifestVersion, info.ArchiveVersion)
}

// Short returns just the version number.
func Short() string {
	return Version
}
