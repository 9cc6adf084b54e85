// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the query service.
//
// The service logs JSON to stderr, which keeps container logs scrapable
// without extra plumbing. Setting LogDir additionally writes the same
// records to a per-service daily file, for deployments that mount a log
// volume.
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    Service: "query-service",
//	})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the minimum severity a record needs to be emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity to emit. Defaults to LevelInfo.
	Level Level

	// Service is attached to every record as the "service" attribute and
	// names the log file when LogDir is set.
	Service string

	// LogDir enables file logging alongside stderr. Supports a leading
	// "~". Empty disables file logging.
	LogDir string

	// Output overrides the stderr destination. Mainly for tests.
	Output io.Writer
}

// Logger owns the slog handler and the optional log file.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger from cfg.
//
// File-logging problems are not fatal: the logger falls back to
// stderr-only and reports the problem there, so a missing volume never
// takes the service down.
func New(cfg Config) *Logger {
	base := cfg.Output
	if base == nil {
		base = os.Stderr
	}
	out := base

	var file *os.File
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			file = f
			out = io.MultiWriter(base, f)
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.Level.slogLevel(),
	})
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return &Logger{slog: logger, file: file}
}

// Default returns a stderr-only logger at info level.
func Default() *Logger {
	return New(Config{})
}

// Slog exposes the underlying slog.Logger, typically for
// slog.SetDefault.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close closes the log file, if one is open. Safe to call when file
// logging is disabled.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// openLogFile creates the log directory and opens the daily file for
// appending.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "aleutian"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// expandPath resolves a leading "~" against the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
