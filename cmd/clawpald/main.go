// ABOUTME: Entry point for the clawpald node daemon.
// ABOUTME: Connects to the gateway as a node and serves the approval terminal.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/fatih/color"

	"github.com/YHlorra/clawpal/internal/config"
	"github.com/YHlorra/clawpal/internal/doctor"
	"github.com/YHlorra/clawpal/internal/history"
	"github.com/YHlorra/clawpal/internal/logging"
	"github.com/YHlorra/clawpal/internal/queue"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _                             _
   ___| | __ ___      ___ __   __ _| |
  / __| |/ _' \ \ /\ / / '_ \ / _' | |
 | (__| | (_| |\ V  V /| |_) | (_| | |
  \___|_|\__,_| \_/\_/ | .__/ \__,_|_|
                       |_|
`

// getConfigPath returns the daemon config file location.
// Priority: CLAWPAL_CONFIG env var > <clawpal dir>/clawpald.yaml
func getConfigPath(p config.Paths) string {
	if envPath := os.Getenv("CLAWPAL_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(p.ClawPalDir, "clawpald.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: clawpald <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run                        Connect to the gateway and serve the approval terminal")
		fmt.Println("  doctor [--fix]             Check the openclaw config, optionally auto-fix")
		fmt.Println("  snapshots                  List config snapshots")
		fmt.Println("  apply <plan.yaml> [--preview]  Stage and run a plan of openclaw commands")
		fmt.Println("  logs [n]                   Print the newest daemon log lines")
		fmt.Println("  version                    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runDaemon(ctx)
	case "doctor":
		err = runDoctor(os.Args[2:])
	case "snapshots":
		err = runSnapshots(ctx)
	case "apply":
		err = runApply(ctx, os.Args[2:])
	case "logs":
		err = runLogs(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadDaemonConfig loads clawpald.yaml, falling back to a minimal config
// built from CLAWPAL_GATEWAY_URL when the file does not exist.
func loadDaemonConfig(p config.Paths) (*config.Config, string, error) {
	path := getConfigPath(p)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		url := os.Getenv("CLAWPAL_GATEWAY_URL")
		if url == "" {
			return nil, path, fmt.Errorf("no config at %s and CLAWPAL_GATEWAY_URL is unset", path)
		}
		cfg := &config.Config{}
		cfg.Gateway.URL = url
		return cfg, path, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runDoctor(args []string) error {
	fix := len(args) > 0 && args[0] == "--fix"

	paths := config.ResolvePaths()
	report := doctor.Run(paths)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if report.OK {
		green.Printf("score: %d\n", report.Score)
	} else {
		red.Printf("score: %d\n", report.Score)
	}

	var fixable []string
	for _, issue := range report.Issues {
		marker := red
		if issue.Severity == "warn" {
			marker = yellow
		}
		marker.Printf("  [%s] ", issue.Severity)
		fmt.Printf("%s: %s\n", issue.ID, issue.Message)
		if issue.FixHint != "" {
			fmt.Printf("         hint: %s\n", issue.FixHint)
		}
		if issue.AutoFixable {
			fixable = append(fixable, issue.ID)
		}
	}

	if !fix || len(fixable) == 0 {
		return nil
	}

	fixed, err := doctor.ApplyFixes(paths, fixable)
	if err != nil {
		return fmt.Errorf("applying fixes: %w", err)
	}
	for _, id := range fixed {
		green.Print("  ✓ ")
		fmt.Printf("fixed %s\n", id)
	}
	return nil
}

func runSnapshots(ctx context.Context) error {
	paths := config.ResolvePaths()
	if err := config.EnsureDirs(paths); err != nil {
		return err
	}

	fileWriter, err := logging.NewFileWriter(paths.LogDir, "app.log")
	if err != nil {
		return err
	}
	logger := logging.NewLogger(fileWriter, logging.ParseLevel(""), "text")

	store, err := history.New(paths.HistoryDBPath, paths.HistoryDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	for _, s := range snaps {
		rollback := " "
		if s.CanRollback {
			rollback = "R"
		}
		fmt.Printf("%s  [%s]  %-12s  %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"), rollback, s.Source, s.ID)
	}
	return nil
}

func runApply(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: clawpald apply <plan.yaml> [--preview]")
	}
	planPath := args[0]
	preview := len(args) > 1 && args[1] == "--preview"

	paths := config.ResolvePaths()
	if err := config.EnsureDirs(paths); err != nil {
		return err
	}

	plan, err := queue.LoadPlan(planPath)
	if err != nil {
		return err
	}

	fileWriter, err := logging.NewFileWriter(paths.LogDir, "app.log")
	if err != nil {
		return err
	}
	logger := logging.NewLogger(fileWriter, logging.ParseLevel(""), "text")

	store, err := history.New(paths.HistoryDBPath, paths.HistoryDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q := queue.New()
	if err := plan.Stage(q); err != nil {
		return err
	}

	svc := &queue.Service{
		Queue:   q,
		Runner:  queue.LocalRunner{},
		Paths:   paths,
		History: store,
		Logger:  logger,
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if preview {
		res, err := svc.Preview(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d step(s):\n", len(res.Commands))
		for i, cmd := range res.Commands {
			fmt.Printf("  %d. %s\n", i+1, cmd.Label)
		}
		if len(res.Errors) > 0 {
			for _, e := range res.Errors {
				red.Printf("  ✗ %s\n", e)
			}
			return nil
		}
		fmt.Println("\n--- config before ---")
		fmt.Println(res.ConfigBefore)
		fmt.Println("--- config after ---")
		fmt.Println(res.ConfigAfter)
		return nil
	}

	res, err := svc.Apply(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		red.Printf("✗ %s\n", res.Error)
		if res.RolledBack {
			fmt.Println("config restored from snapshot")
		}
		return fmt.Errorf("applied %d/%d steps", res.AppliedCount, res.TotalCount)
	}
	green.Printf("✓ applied %d/%d steps\n", res.AppliedCount, res.TotalCount)
	return nil
}

func runLogs(args []string) error {
	n := 50
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid line count %q", args[0])
		}
		n = parsed
	}

	paths := config.ResolvePaths()
	tail, err := logging.Tail(paths.LogDir, "app.log", n)
	if err != nil {
		return err
	}
	if tail != "" {
		fmt.Println(tail)
	}
	return nil
}
