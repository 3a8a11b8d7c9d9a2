// ABOUTME: Trimming file writer usable as an slog handler sink, plus Tail.
// ABOUTME: Tail rejects filenames that could escape the log directory.

package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// maxLines triggers a trim once the file also exceeds sizeThreshold.
	maxLines = 5000
	// trimTo is the number of newest lines kept after a trim.
	trimTo = 3000
	// sizeThreshold avoids counting lines on every append (~500 KB).
	sizeThreshold = 500_000
)

// ErrInvalidFilename rejects tail filenames with path separators or dot-dot
// segments.
var ErrInvalidFilename = errors.New("invalid log filename")

// FileWriter appends to a single log file, trimming it when it grows past
// the caps. Safe for concurrent use; satisfies io.Writer so it can back an
// slog handler.
type FileWriter struct {
	mu   sync.Mutex
	path string
}

// NewFileWriter creates the log directory and returns a writer for the
// named file inside it.
func NewFileWriter(dir, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

// Write appends p to the file, trimming first when the caps are exceeded.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trimIfNeeded()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}

func (w *FileWriter) trimIfNeeded() {
	info, err := os.Stat(w.path)
	if err != nil || info.Size() <= sizeThreshold {
		return
	}
	content, err := os.ReadFile(w.path)
	if err != nil {
		return
	}
	lines := splitLines(string(content))
	if len(lines) < maxLines {
		return
	}
	trimmed := strings.Join(lines[len(lines)-trimTo:], "\n") + "\n"
	_ = os.WriteFile(w.path, []byte(trimmed), 0o644)
}

// Tail returns the newest n lines of the named file in dir. A missing file
// yields an empty string.
func Tail(dir, filename string, n int) (string, error) {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", ErrInvalidFilename
	}

	content, err := os.ReadFile(filepath.Join(dir, filename))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	lines := splitLines(string(content))
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// splitLines splits on newlines, dropping a trailing empty line.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// NewLogger builds an slog.Logger writing JSON or text records to w at the
// given level.
func NewLogger(w *FileWriter, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config string to an slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
