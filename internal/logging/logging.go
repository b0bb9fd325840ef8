// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zerolog loggers used by the bridge commands.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "WHV_LOG_LEVEL"
	EnvLogTimestamp = "WHV_LOG_TIMESTAMP"
	EnvLogNoColor   = "WHV_LOG_NOCOLOR"
	EnvLogJSON      = "WHV_LOG_JSON"
)

// TimeFormat is the console timestamp layout
const TimeFormat = "15:04:05.000"

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls logger construction. Zero values come from the profile.
type Options struct {
	Profile   Profile
	Level     string // overrides the profile level when set
	Out       io.Writer
	Timestamp bool
	NoColor   bool
	JSON      bool // raw JSON lines instead of console output
}

// DefaultOptions returns the options for a profile
func DefaultOptions(profile Profile) Options {
	opts := Options{Profile: profile, Out: os.Stderr}
	switch profile {
	case ProfileTest:
		opts.Level = "debug"
		opts.Timestamp = false
		opts.NoColor = true
	default:
		opts.Level = "info"
		opts.Timestamp = true
		opts.NoColor = !isTerminal(os.Stderr)
	}
	return opts
}

// New builds a logger from opts after applying environment overrides
func New(opts Options) zerolog.Logger {
	applyEnvOverrides(&opts)
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	level, ok := ParseLevel(opts.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	var out io.Writer = opts.Out
	if !opts.JSON {
		cw := zerolog.ConsoleWriter{
			Out:        opts.Out,
			NoColor:    opts.NoColor,
			TimeFormat: TimeFormat,
		}
		if !opts.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	ctx := zerolog.New(out).Level(level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(opts *Options) {
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			opts.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		opts.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		opts.JSON = v
	}
}

// ParseLevel maps a level name to a zerolog level
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

