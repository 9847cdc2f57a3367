// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger used by the ipcbridge
// binaries.
//
// Format "auto" selects slog.TextHandler when stderr is a terminal and
// slog.JSONHandler otherwise, so interactive runs stay readable while
// redirected output stays machine-parseable. Callers scope the logger
// with component context via With():
//
//	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
//	logger = logger.With("component", "host")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// New returns a logger writing to stderr at the given level and format.
func New(level, format string) (*slog.Logger, error) {
	return NewWithWriter(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level, format)
}

// NewWithWriter returns a logger writing to w. terminal decides what
// "auto" resolves to.
func NewWithWriter(w io.Writer, terminal bool, level, format string) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: parsed}

	switch format {
	case "", "auto":
		if terminal {
			return slog.New(slog.NewTextHandler(w, options)), nil
		}
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected auto, text, or json)", format)
	}
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}
