package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Oss53pa/cockpit-core/internal/config"
	"github.com/Oss53pa/cockpit-core/internal/core"
	_ "github.com/Oss53pa/cockpit-core/internal/core/categories" // Register all categories
	"github.com/Oss53pa/cockpit-core/internal/logging"
	"github.com/Oss53pa/cockpit-core/internal/store/memory"
	"github.com/Oss53pa/cockpit-core/internal/store/postgres"
	"github.com/Oss53pa/cockpit-core/internal/web"
)

func main() {
	// Load .env if present (Overload overwrites existing env vars).
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store core.Store
	if cfg.Database.URL != "" {
		pgStore, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		slog.Info("connected to postgres")
	} else {
		store = memory.New()
		slog.Warn("DATABASE_URL not set, running with in-memory storage")
	}

	service := core.NewService(store)
	core.CommitBatchSize = cfg.Import.BatchSize

	server := web.NewServer(service, cfg.Import.MaxFileSize, cfg.Import.Timeout)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Server.Addr())
		errCh <- server.Start(cfg.Server.Addr(), cfg.Server.ReadTimeout, cfg.Server.IdleTimeout)
	}()

	select {
	case err := <-errCh:
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped cleanly")
}
