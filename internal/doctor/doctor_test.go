// ABOUTME: Tests for the doctor report scoring and auto-fixes.
// ABOUTME: Exercises syntax, missing-field, port-range, and permission checks.

package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YHlorra/clawpal/internal/config"
)

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	dir := t.TempDir()
	p := config.Paths{
		OpenClawDir: filepath.Join(dir, ".openclaw"),
		ConfigPath:  filepath.Join(dir, ".openclaw", "openclaw.json"),
		ClawPalDir:  filepath.Join(dir, ".clawpal"),
		HistoryDir:  filepath.Join(dir, ".clawpal", "history"),
		LogDir:      filepath.Join(dir, ".clawpal", "logs"),
	}
	require.NoError(t, config.EnsureDirs(p))
	return p
}

func issueIDs(r Report) []string {
	ids := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		ids = append(ids, issue.ID)
	}
	return ids
}

func TestRunHealthyConfig(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath,
		`{"agents":{"defaults":{"model":"gpt-4o"}},"gateway":{"port":9443}}`))

	report := Run(p)
	assert.True(t, report.OK)
	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Issues)
}

func TestRunMissingConfigFile(t *testing.T) {
	p := testPaths(t)

	report := Run(p)
	// Missing file: defaults parse fine, but agents and permissions flag.
	assert.False(t, report.OK)
	assert.Contains(t, issueIDs(report), IssueAgents)
	assert.Contains(t, issueIDs(report), IssuePermission)
	assert.Equal(t, 70, report.Score)
}

func TestRunBrokenSyntax(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath, `{"agents": {unquoted}`))

	report := Run(p)
	assert.False(t, report.OK)
	assert.Contains(t, issueIDs(report), IssueSyntax)

	syntax := report.Issues[0]
	assert.True(t, syntax.AutoFixable)
	assert.Equal(t, "error", syntax.Severity)
}

func TestRunToleratesCommentsAndTrailingCommas(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath,
		"{\n  // managed by clawpal\n  \"agents\": {},\n}"))

	report := Run(p)
	assert.NotContains(t, issueIDs(report), IssueSyntax)
}

func TestRunInvalidPort(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath,
		`{"agents":{},"gateway":{"port":99999}}`))

	report := Run(p)
	assert.Contains(t, issueIDs(report), IssuePort)
	assert.Equal(t, 80, report.Score)

	require.NoError(t, config.WriteText(p.ConfigPath,
		`{"agents":{},"gateway":{"port":9443}}`))
	assert.Empty(t, Run(p).Issues)
}

func TestRunReadonlyConfig(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath, `{"agents":{}}`))
	require.NoError(t, os.Chmod(p.ConfigPath, 0o444))
	t.Cleanup(func() { _ = os.Chmod(p.ConfigPath, 0o644) })

	report := Run(p)
	assert.Contains(t, issueIDs(report), IssuePermission)
}

func TestApplyFixesAgentsAndPort(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath, `{"gateway":{"port":99999}}`))

	fixed, err := ApplyFixes(p, []string{IssueAgents, IssuePort})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{IssueAgents, IssuePort}, fixed)

	var cfg map[string]any
	require.NoError(t, config.ReadJSON(p.ConfigPath, &cfg))
	agents, ok := cfg["agents"].(map[string]any)
	require.True(t, ok)
	defaults, ok := agents["defaults"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", defaults["model"])
	gateway, ok := cfg["gateway"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(8080), gateway["port"])

	report := Run(p)
	assert.True(t, report.OK)
	assert.Empty(t, report.Issues)
}

func TestApplyFixesSkipsUnselected(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath, `{}`))

	fixed, err := ApplyFixes(p, []string{IssuePort})
	require.NoError(t, err)
	assert.Equal(t, []string{IssuePort}, fixed)

	var cfg map[string]any
	require.NoError(t, config.ReadJSON(p.ConfigPath, &cfg))
	_, hasAgents := cfg["agents"]
	assert.False(t, hasAgents)
}

func TestApplyFixesNoSelection(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, config.WriteText(p.ConfigPath, `{"agents":{}}`))

	fixed, err := ApplyFixes(p, nil)
	require.NoError(t, err)
	assert.Empty(t, fixed)
}
