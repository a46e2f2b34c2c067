// Package main provides the stdio MCP server for SprintPilot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/sprintpilot/internal/app"
	"github.com/raphaelgruber/sprintpilot/internal/config"
	"github.com/raphaelgruber/sprintpilot/internal/server"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr and the log file.
	logger, cleanup := config.SetupLogger(cfg, "mcp")
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("sprintpilot-mcp starting",
		"version", version,
		"store", cfg.Store,
		"ai_provider", cfg.AIProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing store")
		_ = a.Close(context.Background())
	}()

	srv := server.New(version, a, logger)
	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
