// ABOUTME: Package logging documentation.
// ABOUTME: File-backed slog output with line-count trimming and a tail reader.

// Package logging provides a trimming file writer for slog handlers plus a
// bounded tail reader. Log files are capped by line count: once a file grows
// past a size threshold with at least 5000 lines, it is trimmed back to its
// newest 3000.
package logging
