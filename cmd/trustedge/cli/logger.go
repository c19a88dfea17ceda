// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger for CLI command operations.
// With format "auto", it uses slog.TextHandler when stderr is a terminal
// for human-readable output, and slog.JSONHandler when stderr is piped or
// redirected (CI, scripts, capture device supervisors) for
// machine-parseable output. "text" and "json" force a handler.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(slog.LevelInfo, "auto").With(
//	    "command", "wrap",
//	    "device_id", deviceID,
//	)
func NewCommandLogger(level slog.Level, format string) (*slog.Logger, error) {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level, format)
}

func newLogger(w io.Writer, terminal bool, level slog.Level, format string) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format {
	case "", "auto":
		if terminal {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		return nil, fmt.Errorf("unknown log format %q (want auto, text, or json)", format)
	}
	return slog.New(handler), nil
}
