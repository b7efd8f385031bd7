// dmnsim - Parse DMN decision tables and see which rows fire.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/dmnsim/internal/api"
	"github.com/opensource-finance/dmnsim/internal/bus"
	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/metrics"
	"github.com/opensource-finance/dmnsim/internal/simulator"
	"github.com/opensource-finance/dmnsim/internal/telemetry"
	"github.com/opensource-finance/dmnsim/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration before the logger so its level applies from the start
	cfg, err := domain.LoadConfig(os.Getenv("DMNSIM_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting dmnsim",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"eventbus", cfg.EventBus.Type,
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled,
		"program_cache_size", cfg.Engine.ProgramCacheSize,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Tracing
	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	if busImpl != nil {
		defer busImpl.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics, nil)
	}

	// Initialize Simulator
	sim, err := simulator.New(cfg.Engine, simulator.WithObserver(collector))
	if err != nil {
		slog.Error("failed to initialize simulator", "error", err)
		os.Exit(1)
	}
	collector.RegisterCacheStats(sim.CacheStats)
	slog.Info("simulator initialized",
		"program_cache_size", cfg.Engine.ProgramCacheSize,
		"max_document_bytes", cfg.Engine.MaxDocumentBytes,
	)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, sim)
		if err := asyncWorker.Start(cfg.Worker); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg, sim, busImpl, collector, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("dmnsim is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("dmnsim shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 DMNSIM                    |")
	fmt.Println("  |        Decision Table Simulator           |")
	fmt.Println("  |     See which rules fire, and why.        |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  EventBus: %s\n", cfg.EventBus.Type)
	if cfg.Worker.Enabled {
		fmt.Printf("  Worker:   %s -> %s\n", domain.TopicEvaluationRequested, domain.TopicEvaluationCompleted)
	}
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/dmn/parse          - List decisions, inputs, outputs and rules")
	fmt.Println("    POST /api/dmn/evaluate       - Evaluate a decision and report matched rows")
	fmt.Println("    POST /api/dmn/allowed-values - Lex an inputValues expression")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println("    GET  /ready                  - Readiness check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-23s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
