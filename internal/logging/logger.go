// Package logging opens the daemon's append-only JSON log file.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const logFileName = "voxkey.log"

// Runtime is an open log destination. Close releases the underlying file.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	sink   *os.File
}

func (r Runtime) Close() error {
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

// New opens the log file in the voxkey state directory and returns a JSON
// logger writing to it. Every invocation appends; records carry the writing
// process's pid so interleaved daemon and CLI lines stay attributable.
func New() (Runtime, error) {
	dir, err := stateDir()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, logFileName)
	sink, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler).With("pid", os.Getpid())
	return Runtime{Logger: logger, Path: path, sink: sink}, nil
}

// stateDir resolves the voxkey directory under XDG_STATE_HOME, falling back
// to ~/.local/state.
func stateDir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); base != "" {
		return filepath.Join(base, "voxkey"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "voxkey"), nil
}
