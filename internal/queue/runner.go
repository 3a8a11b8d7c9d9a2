// ABOUTME: Runners execute openclaw CLI commands locally or over SSH.
// ABOUTME: Includes tolerant JSON extraction from noisy CLI output.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/YHlorra/clawpal/internal/sshpool"
)

// Output is the captured result of one CLI invocation.
type Output struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Runner executes the openclaw CLI with extra environment variables. A
// non-zero exit status is reported in the Output, not as an error.
type Runner interface {
	Run(ctx context.Context, args []string, env map[string]string) (Output, error)
}

// LocalRunner runs the CLI as a local subprocess.
type LocalRunner struct {
	// Bin overrides the binary name; defaults to "openclaw".
	Bin string
}

func (r LocalRunner) Run(ctx context.Context, args []string, env map[string]string) (Output, error) {
	bin := r.Bin
	if bin == "" {
		bin = "openclaw"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Output{}, fmt.Errorf("failed to run %s: %w", bin, err)
		}
	}

	return Output{
		Stdout:   strings.TrimRight(stdout.String(), "\n"),
		Stderr:   strings.TrimRight(stderr.String(), "\n"),
		ExitCode: exitCode,
	}, nil
}

// RemoteRunner runs the CLI on an SSH host through the pool, wrapped in a
// login shell so version-manager installs are on PATH.
type RemoteRunner struct {
	Pool   *sshpool.Pool
	HostID string
}

func (r RemoteRunner) Run(_ context.Context, args []string, env map[string]string) (Output, error) {
	res, err := r.Pool.ExecLogin(r.HostID, buildRemoteCommand(args, env))
	if err != nil {
		return Output{}, err
	}
	return Output{
		Stdout:   strings.TrimRight(res.Stdout, "\n"),
		Stderr:   strings.TrimRight(res.Stderr, "\n"),
		ExitCode: res.ExitCode,
	}, nil
}

// buildRemoteCommand renders env assignments plus the quoted openclaw argv
// as one shell line.
func buildRemoteCommand(args []string, env map[string]string) string {
	var b strings.Builder
	for k, v := range env {
		fmt.Fprintf(&b, "%s='%s' ", k, strings.ReplaceAll(v, "'", `'\''`))
	}
	b.WriteString("openclaw")
	for _, arg := range args {
		fmt.Fprintf(&b, " '%s'", strings.ReplaceAll(arg, "'", `'\''`))
	}
	return b.String()
}

// ParseJSONOutput extracts the first JSON document from a successful CLI
// run. The CLI sometimes prints banner lines before the JSON, so scanning
// starts at the first brace or bracket.
func ParseJSONOutput(out Output) (any, error) {
	if out.ExitCode != 0 {
		detail := out.Stderr
		if detail == "" {
			detail = out.Stdout
		}
		return nil, fmt.Errorf("openclaw command failed (%d): %s", out.ExitCode, detail)
	}

	start := strings.IndexAny(out.Stdout, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON found in output: %s", out.Stdout)
	}

	var v any
	if err := json.Unmarshal([]byte(out.Stdout[start:]), &v); err != nil {
		return nil, fmt.Errorf("failed to parse JSON output: %w", err)
	}
	return v, nil
}
