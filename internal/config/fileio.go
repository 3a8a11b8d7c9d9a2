// ABOUTME: Atomic file IO for the managed openclaw.json config.
// ABOUTME: Reads are tolerant of comments and trailing commas via hujson.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// DefaultOpenClawConfig is returned when openclaw.json does not exist yet.
const DefaultOpenClawConfig = "{}"

// ReadText returns the contents of path, or DefaultOpenClawConfig if the
// file does not exist.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultOpenClawConfig, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// WriteText writes content to path atomically: temp file in the same
// directory, fsync, then rename over the target.
func WriteText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// ReadJSON parses the file at path into v. The input may contain comments
// and trailing commas; it is standardized before unmarshaling.
func ReadJSON(path string, v any) error {
	text, err := ReadText(path)
	if err != nil {
		return err
	}
	std, err := hujson.Standardize([]byte(text))
	if err != nil {
		return fmt.Errorf("standardizing %s: %w", path, err)
	}
	if err := json.Unmarshal(std, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v to path as indented JSON, atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return WriteText(path, string(data)+"\n")
}

// ReadOpenClawConfig loads openclaw.json as a generic map. Another process
// may be mid-write, so a parse failure is retried once after a short delay;
// a second failure yields an empty config rather than an error.
func ReadOpenClawConfig(p Paths) map[string]any {
	var cfg map[string]any
	if err := ReadJSON(p.ConfigPath, &cfg); err == nil && cfg != nil {
		return cfg
	}
	time.Sleep(50 * time.Millisecond)
	cfg = nil
	if err := ReadJSON(p.ConfigPath, &cfg); err == nil && cfg != nil {
		return cfg
	}
	return map[string]any{}
}
