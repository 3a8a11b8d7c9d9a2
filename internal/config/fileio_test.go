// ABOUTME: Tests for atomic file IO and tolerant JSON parsing.
// ABOUTME: Covers missing-file defaults, trailing commas, and write-then-read round trips.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadText_MissingFileReturnsDefault(t *testing.T) {
	text, err := ReadText(filepath.Join(t.TempDir(), "openclaw.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenClawConfig, text)
}

func TestWriteText_CreatesParentAndIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "openclaw.json")

	require.NoError(t, WriteText(path, `{"gateway":{"port":18789}}`))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, `{"gateway":{"port":18789}}`, text)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadJSON_ToleratesCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // agent defaults
  "agents": {"defaults": {"model": "gpt-4o"},},
}`), 0o600))

	var cfg map[string]any
	require.NoError(t, ReadJSON(path, &cfg))

	agents, ok := cfg["agents"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, agents, "defaults")
}

func TestReadJSON_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all {{{"), 0o600))

	var cfg map[string]any
	require.Error(t, ReadJSON(path, &cfg))
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")

	in := map[string]any{"gateway": map[string]any{"auth": map[string]any{"token": "abc"}}}
	require.NoError(t, WriteJSON(path, in))

	var out map[string]any
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "abc", out["gateway"].(map[string]any)["auth"].(map[string]any)["token"])
}

func TestReadOpenClawConfig_FallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	p := Paths{ConfigPath: filepath.Join(dir, "openclaw.json")}
	require.NoError(t, os.WriteFile(p.ConfigPath, []byte("{{{broken"), 0o600))

	cfg := ReadOpenClawConfig(p)
	assert.Empty(t, cfg)
}
