// ABOUTME: Terminal notifier: surfaces invokes and runs the approval commands.
// ABOUTME: Approved system.run commands execute locally under sh -lc.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	"github.com/YHlorra/clawpal/internal/bridge"
)

// terminal is the interactive bridge.Notifier. It prints notifications with
// color and executes operator dispositions.
type terminal struct {
	logger     *slog.Logger
	fileLogger *slog.Logger
	client     *bridge.Client

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
}

func newTerminal(logger, fileLogger *slog.Logger) *terminal {
	return &terminal{
		logger:     logger,
		fileLogger: fileLogger,
		green:      color.New(color.FgGreen),
		yellow:     color.New(color.FgYellow),
		red:        color.New(color.FgRed),
		gray:       color.New(color.FgHiBlack),
	}
}

func (t *terminal) Connected() {
	t.green.Println("● connected to gateway")
}

func (t *terminal) Disconnected(reason string) {
	t.red.Printf("● disconnected: %s\n", reason)
	t.gray.Println("  type \"connect\" to reconnect")
}

func (t *terminal) InvokeReceived(inv bridge.Invoke) {
	marker := t.yellow
	if inv.Risk == bridge.RiskRead {
		marker = t.green
	}
	marker.Printf("→ invoke %s ", inv.ID)
	if cmd, ok := bridge.ShellCommand(inv.Args); ok {
		color.New(color.Bold).Printf("%s ", cmd)
	}
	t.gray.Printf("[%s %s]\n", inv.Command, inv.Risk)
	t.gray.Printf("  approve %s | reject %s\n", inv.ID, inv.ID)
}

func (t *terminal) Notice(msg string) {
	t.yellow.Printf("! %s\n", msg)
}

func (t *terminal) printHelp() {
	t.gray.Println("commands: list | approve <id> | reject <id> | connect | quit")
}

// dispatch handles one operator command line, returning true to exit.
func (t *terminal) dispatch(ctx context.Context, line string, source bridge.CredentialSource) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		t.printHelp()
	case "list":
		pending := t.client.PendingInvokes()
		if len(pending) == 0 {
			t.gray.Println("no pending invokes")
			return false
		}
		for _, inv := range pending {
			cmd, _ := bridge.ShellCommand(inv.Args)
			t.gray.Printf("  %s  [%s]  %s\n", inv.ID, inv.Risk, cmd)
		}
	case "connect":
		if err := t.client.Connect(ctx, source); err != nil {
			t.red.Printf("connect failed: %v\n", err)
		}
	case "approve":
		if len(fields) < 2 {
			t.red.Println("usage: approve <id>")
			return false
		}
		t.approve(ctx, fields[1])
	case "reject":
		if len(fields) < 2 {
			t.red.Println("usage: reject <id>")
			return false
		}
		t.reject(ctx, fields[1])
	default:
		t.red.Printf("unknown command: %s\n", fields[0])
		t.printHelp()
	}
	return false
}

// approve executes the invoke locally and reports its result. An expired
// invoke's result cannot travel the primary path anymore; it is routed to
// the log file instead.
func (t *terminal) approve(ctx context.Context, id string) {
	inv, ok := t.findInvoke(id)
	if !ok {
		t.red.Printf("no pending invoke %s\n", id)
		return
	}
	if inv.Command != bridge.CommandSystemRun {
		t.reject(ctx, id)
		return
	}
	shellCmd, ok := bridge.ShellCommand(inv.Args)
	if !ok {
		t.red.Printf("invoke %s carries no command\n", id)
		return
	}

	out, runErr := runShell(ctx, shellCmd)
	result := map[string]any{
		"stdout":   out.stdout,
		"stderr":   out.stderr,
		"exitCode": out.exitCode,
	}
	if runErr != nil {
		t.red.Printf("execution failed: %v\n", runErr)
		result["stderr"] = runErr.Error()
		result["exitCode"] = -1
	}

	expired, err := t.client.Resolve(ctx, id, result)
	if err != nil {
		t.red.Printf("resolving %s: %v\n", id, err)
		return
	}
	if expired {
		t.yellow.Printf("invoke %s already timed out; result written to log\n", id)
		t.fileLogger.Info("late invoke result",
			"invoke_id", id,
			"command", shellCmd,
			"stdout", out.stdout,
			"stderr", out.stderr,
			"exit_code", out.exitCode,
		)
		return
	}
	t.green.Printf("✓ resolved %s (exit %d)\n", id, out.exitCode)
}

func (t *terminal) reject(ctx context.Context, id string) {
	expired, err := t.client.Reject(ctx, id, "DENIED", "Rejected by operator")
	if err != nil {
		t.red.Printf("rejecting %s: %v\n", id, err)
		return
	}
	if expired {
		t.gray.Printf("invoke %s already timed out\n", id)
		return
	}
	t.yellow.Printf("✗ rejected %s\n", id)
}

func (t *terminal) findInvoke(id string) (bridge.Invoke, bool) {
	for _, inv := range t.client.PendingInvokes() {
		if inv.ID == id {
			return inv, true
		}
	}
	return bridge.Invoke{}, false
}

type shellOutput struct {
	stdout   string
	stderr   string
	exitCode int
}

func runShell(ctx context.Context, command string) (shellOutput, error) {
	cmd := exec.CommandContext(ctx, "sh", "-lc", command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return shellOutput{}, err
		}
	}
	return shellOutput{
		stdout:   strings.TrimRight(stdout.String(), "\n"),
		stderr:   strings.TrimRight(stderr.String(), "\n"),
		exitCode: exitCode,
	}, nil
}
