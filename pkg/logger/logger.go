// Package logger provides structured logging configuration shared by every
// command and package in the pipeline.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
}

// New creates a new structured logger from cfg.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Logger()
}

// SetGlobalLogger sets the package-level zerolog logger used by libraries
// that log through the global log.Logger instead of an injected instance.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

// NewRunFile creates the rotating per-run text log file for one
// orchestrated pipeline run: logDir/YYYYMMDD-HHMMSS-run.log. Every run gets
// its own file rather than one ever-growing log, so a single run's output
// can be shipped or inspected without grepping through prior days.
func NewRunFile(logDir string, startedAt time.Time) (*os.File, error) {
	name := startedAt.UTC().Format("20060102-150405") + "-run.log"
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}
	return f, nil
}

// NewRunLogger builds a logger that writes to both the usual destination
// (console or JSON stdout, per cfg) and runFile, so a run's output is
// captured on disk in addition to wherever cfg normally sends it.
func NewRunLogger(cfg Config, runFile *os.File) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(zerolog.MultiLevelWriter(console, runFile)).
		With().
		Timestamp().
		Logger()
}
