package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arclab/grover/internal/arc"
	"github.com/arclab/grover/internal/broadcast"
	"github.com/arclab/grover/internal/config"
	"github.com/arclab/grover/internal/grover"
	"github.com/arclab/grover/internal/llm"
	"github.com/arclab/grover/internal/providers"
	"github.com/arclab/grover/internal/sandbox"
	"github.com/arclab/grover/internal/server"
	"github.com/arclab/grover/internal/storage"
	"github.com/arclab/grover/internal/storage/sqlite"
	"github.com/arclab/grover/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("groverd", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		explanations storage.ExplanationStore
		threads      storage.ThreadStateStore
	)
	if cfg.Storage.Type == "sqlite" {
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer store.Close()
		explanations = store
		threads = store
	}

	var sandboxOpts []sandbox.ClientOption
	if cfg.Sandbox.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.Sandbox.Timeout)
		if err != nil {
			log.Fatalf("Invalid sandbox timeout %q: %v", cfg.Sandbox.Timeout, err)
		}
		sandboxOpts = append(sandboxOpts, sandbox.WithTimeout(timeout))
	}

	registry := providers.NewRegistry()
	llmService := llm.NewService(registry, logger)
	executor := sandbox.NewClient(cfg.Sandbox.URL, sandboxOpts...)
	hub := broadcast.NewHub(logger)
	puzzles := arc.NewLoader(cfg.Puzzles.Dirs...)

	loop := grover.NewLoop(llmService, executor, hub, logger)
	solver := grover.NewService(loop, puzzles, hub, explanations, threads, logger)

	handlers := server.NewHandlers(solver, llmService, hub, logger)
	srv := server.New(cfg.Server.Port, logger, handlers)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Server shutdown complete")
}
