package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/CatalogImport/internal/app"
	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/logging"
	"github.com/JonMunkholm/CatalogImport/internal/metrics"
	"github.com/JonMunkholm/CatalogImport/internal/storage/postgres"
	"github.com/JonMunkholm/CatalogImport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"media_backend", cfg.Media.Backend,
	)

	ctx := context.Background()
	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	var (
		observer       core.Observer
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		observer = metrics.NewObserver(prometheus.DefaultRegisterer)
		metricsHandler = metrics.Handler(prometheus.DefaultGatherer)
	}

	imports, err := app.NewService(ctx, cfg, pool, observer)
	if err != nil {
		slog.Error("failed to create import service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(cfg, imports, metricsHandler, pool.Ping)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := imports.LimiterStatus(); status.Active > 0 {
			slog.Info("cancelling active imports", "active", status.Active)
		}
		if err := imports.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not stop in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
