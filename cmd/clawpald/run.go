// ABOUTME: The run command: banner, config, bridge connection, approval loop.
// ABOUTME: Operator I/O goes to the terminal, records to the rolling log file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/YHlorra/clawpal/internal/bridge"
	"github.com/YHlorra/clawpal/internal/config"
	"github.com/YHlorra/clawpal/internal/identity"
	"github.com/YHlorra/clawpal/internal/logging"
)

func runDaemon(ctx context.Context) error {
	paths := config.ResolvePaths()
	if err := config.EnsureDirs(paths); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadDaemonConfig(paths)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	fileWriter, err := logging.NewFileWriter(paths.LogDir, "app.log")
	if err != nil {
		return err
	}
	fileLogger := logging.NewLogger(fileWriter, logging.ParseLevel(cfg.Logging.Level), "json")

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Gateway: %s\n", cfg.Gateway.URL)
	green.Print("    ▶ ")
	fmt.Printf("Logs:    %s\n\n", paths.LogDir)

	notifier := newTerminal(logger, fileLogger)

	client := bridge.New(bridge.Config{
		URL:             cfg.Gateway.URL,
		Version:         version,
		RequestTimeout:  cfg.Bridge.RequestTimeout,
		AutoRejectDelay: cfg.Bridge.AutoRejectDelay,
	}, notifier, logger)
	notifier.client = client

	source := identity.Local{Paths: paths}
	if err := client.Connect(ctx, source); err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	defer client.Disconnect()

	logger.Info("clawpald started", "gateway", cfg.Gateway.URL)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	notifier.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if quit := notifier.dispatch(ctx, line, source); quit {
				return nil
			}
		}
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := logging.ParseLevel(cfg.Level)

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(logging.NewConsoleHandler(os.Stdout, level))
}
