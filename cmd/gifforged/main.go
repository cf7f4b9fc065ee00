// Package main provides the entry point for the gifforge daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gifforge/gifforge/internal/bootstrap"
	"github.com/gifforge/gifforge/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gifforged",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("scratch_dir", cfg.ScratchDir),
		slog.String("engine_mode", cfg.EngineMode),
		slog.Int("gif_frame_rate", cfg.GIFFrameRate),
		slog.Int("gif_width", cfg.GIFWidth),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Build the dependency graph; engine bootstrap failure degrades the
	// service instead of aborting it.
	deps, err := bootstrap.NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.Warn("release scratch lock", slog.String("error", closeErr.Error()))
		}
	}()

	if !deps.EngineStatus.Ready {
		logger.Warn("serving in degraded mode; conversions will be refused",
			slog.String("engine_error", deps.EngineStatus.Error),
		)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      deps.Router,
		ReadTimeout:  10 * time.Minute, // Large uploads stream slowly
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
			slog.Bool("engine_ready", deps.EngineStatus.Ready),
			slog.String("engine_version", deps.EngineStatus.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
