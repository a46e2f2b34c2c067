// Package main provides the HTTP and WebSocket server for SprintPilot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/api"
	"github.com/raphaelgruber/sprintpilot/internal/app"
	"github.com/raphaelgruber/sprintpilot/internal/config"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg, "server")
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("starting sprintpilot-server",
		"port", cfg.ServerPort,
		"store", cfg.Store,
		"ai_provider", cfg.AIProvider,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	if *wipeDB || os.Getenv("SPRINTPILOT_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.WipeData(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.New(a, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // a turn may take several provider calls
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("chat endpoint available", "url", fmt.Sprintf("http://localhost:%s/api/workspaces/{ws}/chat", cfg.ServerPort))
		logger.Info("websocket endpoint available", "url", fmt.Sprintf("ws://localhost:%s/api/workspaces/{ws}/ws", cfg.ServerPort))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
