// ABOUTME: Tests for the FIFO queue and JSON output extraction.
// ABOUTME: Also covers remote command rendering and plan loading.

package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New()

	a, err := q.Enqueue("add agent", []string{"openclaw", "agents", "add", "helper"})
	require.NoError(t, err)
	b, err := q.Enqueue("set port", []string{"openclaw", "config", "set", "gateway.port", "9443"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	assert.True(t, q.Remove(a.ID))
	assert.False(t, q.Remove(a.ID))
	assert.Equal(t, 1, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.List())
}

func TestQueueRejectsEmptyCommand(t *testing.T) {
	q := New()
	_, err := q.Enqueue("noop", nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestParseJSONOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     Output
		want    any
		wantErr string
	}{
		{
			name: "plain object",
			out:  Output{Stdout: `{"ok":true}`},
			want: map[string]any{"ok": true},
		},
		{
			name: "banner before json",
			out:  Output{Stdout: "openclaw v1.2\nloading...\n{\"port\":9443}"},
			want: map[string]any{"port": float64(9443)},
		},
		{
			name: "array output",
			out:  Output{Stdout: `[1,2]`},
			want: []any{float64(1), float64(2)},
		},
		{
			name:    "non-zero exit prefers stderr",
			out:     Output{Stdout: "{}", Stderr: "boom", ExitCode: 2},
			wantErr: "boom",
		},
		{
			name:    "non-zero exit falls back to stdout",
			out:     Output{Stdout: "broken", ExitCode: 1},
			wantErr: "broken",
		},
		{
			name:    "no json at all",
			out:     Output{Stdout: "nothing here"},
			wantErr: "no JSON found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONOutput(tt.out)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRemoteCommand(t *testing.T) {
	got := buildRemoteCommand([]string{"config", "set", "name", "it's"}, nil)
	assert.Equal(t, `openclaw 'config' 'set' 'name' 'it'\''s'`, got)

	withEnv := buildRemoteCommand([]string{"config", "get"}, map[string]string{"OPENCLAW_HOME": "/tmp/sandbox"})
	assert.Equal(t, `OPENCLAW_HOME='/tmp/sandbox' openclaw 'config' 'get'`, withEnv)
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
steps:
  - label: add agent
    command: ["openclaw", "agents", "add", "helper"]
  - label: set port
    command: ["openclaw", "config", "set", "gateway.port", "9443"]
`), 0o644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "add agent", plan.Steps[0].Label)

	q := New()
	require.NoError(t, plan.Stage(q))
	assert.Equal(t, 2, q.Len())
}

func TestLoadPlanRejectsBadSteps(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("steps: []\n"), 0o644))
	_, err := LoadPlan(empty)
	assert.ErrorContains(t, err, "no steps")

	wrongBin := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(wrongBin, []byte(`
steps:
  - label: bad
    command: ["rm", "-rf", "/"]
`), 0o644))
	_, err = LoadPlan(wrongBin)
	assert.ErrorContains(t, err, `must start with "openclaw"`)
}
