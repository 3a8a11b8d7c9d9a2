// ABOUTME: Resolves the ClawPal and OpenClaw directory layout.
// ABOUTME: Honors env overrides, expands ~, and migrates the legacy data dir.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Paths holds every filesystem location the daemon touches.
type Paths struct {
	// OpenClawDir is the OpenClaw home (device identity, openclaw.json).
	OpenClawDir string
	// ConfigPath is the managed openclaw.json inside OpenClawDir.
	ConfigPath string
	// ClawPalDir is ClawPal's own data directory.
	ClawPalDir string
	// HistoryDir holds config snapshot files.
	HistoryDir string
	// HistoryDBPath is the SQLite index of snapshots.
	HistoryDBPath string
	// LogDir holds the daemon's rolling log files.
	LogDir string
}

// expandUserPath replaces a leading "~/" with the user's home directory.
func expandUserPath(raw string) string {
	if rest, ok := strings.CutPrefix(raw, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return raw
}

// envPath returns the expanded value of an environment variable, or "" if
// the variable is unset or blank.
func envPath(name string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return ""
	}
	return expandUserPath(v)
}

// ResolvePaths computes the directory layout.
// Priority: CLAWPAL_OPENCLAW_DIR > OPENCLAW_HOME > ~/.openclaw for the
// OpenClaw home, and CLAWPAL_DATA_DIR > ~/.clawpal for ClawPal's data.
func ResolvePaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	openclawDir := envPath("CLAWPAL_OPENCLAW_DIR")
	if openclawDir == "" {
		openclawDir = envPath("OPENCLAW_HOME")
	}
	if openclawDir == "" {
		openclawDir = filepath.Join(home, ".openclaw")
	}

	clawpalDir := envPath("CLAWPAL_DATA_DIR")
	if clawpalDir == "" {
		clawpalDir = filepath.Join(home, ".clawpal")
	}

	migrateLegacyDir(openclawDir, clawpalDir)

	return Paths{
		OpenClawDir:   openclawDir,
		ConfigPath:    filepath.Join(openclawDir, "openclaw.json"),
		ClawPalDir:    clawpalDir,
		HistoryDir:    filepath.Join(clawpalDir, "history"),
		HistoryDBPath: filepath.Join(clawpalDir, "history.db"),
		LogDir:        filepath.Join(clawpalDir, "logs"),
	}
}

// migrateLegacyDir moves ~/.openclaw/.clawpal to ~/.clawpal. Early releases
// nested the data dir inside the OpenClaw home.
func migrateLegacyDir(openclawDir, clawpalDir string) {
	legacy := filepath.Join(openclawDir, ".clawpal")
	info, err := os.Stat(legacy)
	if err != nil || !info.IsDir() {
		return
	}
	if _, err := os.Stat(clawpalDir); os.IsNotExist(err) {
		_ = os.Rename(legacy, clawpalDir)
		return
	}
	// Both exist: the new dir wins, drop the stale legacy copy.
	_ = os.RemoveAll(legacy)
}

// EnsureDirs creates the directories a running daemon expects.
func EnsureDirs(p Paths) error {
	for _, dir := range []string{p.OpenClawDir, p.ClawPalDir, p.HistoryDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
