// ABOUTME: Preview and apply semantics for the staged command queue.
// ABOUTME: Preview runs in an OPENCLAW_HOME sandbox; apply snapshots and rolls back.

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/YHlorra/clawpal/internal/config"
	"github.com/YHlorra/clawpal/internal/history"
)

// ErrEmptyQueue is returned by Preview and Apply when nothing is staged.
var ErrEmptyQueue = errors.New("no pending commands")

// PreviewResult reports a sandboxed dry run of the queue.
type PreviewResult struct {
	Commands     []PendingCommand `json:"commands"`
	ConfigBefore string           `json:"configBefore"`
	ConfigAfter  string           `json:"configAfter"`
	Errors       []string         `json:"errors"`
}

// ApplyResult reports a real run of the queue.
type ApplyResult struct {
	OK           bool   `json:"ok"`
	AppliedCount int    `json:"appliedCount"`
	TotalCount   int    `json:"totalCount"`
	Error        string `json:"error,omitempty"`
	RolledBack   bool   `json:"rolledBack"`
}

// Service binds the queue to a runner, the config paths, and the snapshot
// store.
type Service struct {
	Queue   *Queue
	Runner  Runner
	Paths   config.Paths
	History *history.Store
	Logger  *slog.Logger
}

// Preview executes the staged commands against a sandboxed copy of the
// config and reports the resulting diff inputs. The real config is never
// touched; execution stops at the first failing step.
func (s *Service) Preview(ctx context.Context) (PreviewResult, error) {
	commands := s.Queue.List()
	if len(commands) == 0 {
		return PreviewResult{}, ErrEmptyQueue
	}

	before, err := config.ReadText(s.Paths.ConfigPath)
	if err != nil {
		return PreviewResult{}, err
	}

	previewRoot := filepath.Join(s.Paths.ClawPalDir, "preview")
	sandbox := filepath.Join(previewRoot, ".openclaw")
	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		return PreviewResult{}, fmt.Errorf("creating preview sandbox: %w", err)
	}
	defer os.RemoveAll(previewRoot)

	sandboxConfig := filepath.Join(sandbox, "openclaw.json")
	if err := config.WriteText(sandboxConfig, before); err != nil {
		return PreviewResult{}, fmt.Errorf("seeding preview sandbox: %w", err)
	}

	env := map[string]string{"OPENCLAW_HOME": sandbox}

	var errs []string
	for _, cmd := range commands {
		out, err := s.Runner.Run(ctx, cmd.Command[1:], env)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", cmd.Label, err))
			break
		}
		if out.ExitCode != 0 {
			errs = append(errs, fmt.Sprintf("%s: %s", cmd.Label, failureDetail(out)))
			break
		}
	}

	after := before
	if len(errs) == 0 {
		after, err = config.ReadText(sandboxConfig)
		if err != nil {
			return PreviewResult{}, err
		}
	}

	return PreviewResult{
		Commands:     commands,
		ConfigBefore: before,
		ConfigAfter:  after,
		Errors:       errs,
	}, nil
}

// Apply executes the staged commands for real. The config is snapshotted
// first; the first failing step stops the run, restores the snapshot, and
// reports rolledBack. The queue is cleared either way.
func (s *Service) Apply(ctx context.Context) (ApplyResult, error) {
	commands := s.Queue.List()
	if len(commands) == 0 {
		return ApplyResult{}, ErrEmptyQueue
	}

	before, err := config.ReadText(s.Paths.ConfigPath)
	if err != nil {
		return ApplyResult{}, err
	}
	if _, err := s.History.Add(ctx, "pre-apply", "queue-apply", true, before); err != nil {
		s.Logger.Warn("pre-apply snapshot failed", "error", err)
	}

	total := len(commands)
	applied := 0
	for _, cmd := range commands {
		out, err := s.Runner.Run(ctx, cmd.Command[1:], nil)
		detail := ""
		if err != nil {
			detail = err.Error()
		} else if out.ExitCode != 0 {
			detail = failureDetail(out)
		}

		if detail != "" {
			if err := config.WriteText(s.Paths.ConfigPath, before); err != nil {
				s.Logger.Error("config rollback failed", "error", err)
			}
			s.Queue.Clear()
			return ApplyResult{
				AppliedCount: applied,
				TotalCount:   total,
				Error:        fmt.Sprintf("Step %d failed (%s): %s", applied+1, cmd.Label, detail),
				RolledBack:   true,
			}, nil
		}
		applied++
	}

	s.Queue.Clear()

	// Best effort; a failed restart does not fail the apply.
	if out, err := s.Runner.Run(ctx, []string{"gateway", "restart"}, nil); err != nil || out.ExitCode != 0 {
		s.Logger.Warn("gateway restart after apply failed", "error", err)
	}

	return ApplyResult{OK: true, AppliedCount: applied, TotalCount: total}, nil
}

func failureDetail(out Output) string {
	if out.Stderr != "" {
		return out.Stderr
	}
	return out.Stdout
}
