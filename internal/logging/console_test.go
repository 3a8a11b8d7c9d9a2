// ABOUTME: Tests for the console slog handler: level gating, line shape,
// ABOUTME: and group-prefixed attribute keys.

package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerRendersOneLine(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelInfo))

	logger.Info("node bridge connected", "node_id", "mbp")

	out := buf.String()
	assert.Contains(t, out, "INF node bridge connected node_id=mbp")
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestConsoleHandlerLevelGate(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelWarn))

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "WRN loud")
}

func TestConsoleHandlerGroupPrefixesKeys(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, slog.LevelDebug))

	logger.WithGroup("invoke").With("id", "inv-1").Debug("received", "risk", "read")

	out := buf.String()
	assert.Contains(t, out, "DBG received")
	assert.Contains(t, out, "invoke.id=inv-1")
	assert.Contains(t, out, "invoke.risk=read")
}

func TestConsoleHandlerLevelTags(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	assert.Equal(t, "ERR", levelTag(slog.LevelError))
	assert.Equal(t, "WRN", levelTag(slog.LevelWarn))
	assert.Equal(t, "INF", levelTag(slog.LevelInfo))
	assert.Equal(t, "DBG", levelTag(slog.LevelDebug))
}
