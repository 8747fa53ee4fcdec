package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/giswater/assetmanage/internal/api"
	"github.com/giswater/assetmanage/internal/config"
	"github.com/giswater/assetmanage/internal/scoring"
	"github.com/giswater/assetmanage/internal/store"
	"github.com/giswater/assetmanage/internal/task"
	"github.com/giswater/assetmanage/internal/validate"
	"github.com/giswater/assetmanage/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("assetmanaged starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"http_port", cfg.HTTP.Port,
		"storage_backend", cfg.Storage.Backend,
		"batch_size", cfg.Engine.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Storage)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}

	registry := scoring.NewRegistry()
	engine := scoring.NewEngine(st, registry, cfg.Engine)
	validator := validate.New(st, registry)
	runner := task.NewRunner(cfg.Task.TimerInterval)

	// Watch config file for hot-reload. Storage and port changes require a
	// restart; only engine/task tuning is picked up live, and an in-flight
	// task keeps the settings it started with.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			engine.UpdateConfig(updated.Engine)
			runner.SetTick(updated.Task.TimerInterval)
			slog.Info("config hot-reloaded",
				"batch_size", updated.Engine.BatchSize,
				"timer_interval", updated.Task.TimerInterval)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// WebSocket hub — forwards task events to UI clients.
	hub := ws.New(runner)
	go hub.Run(ctx)

	// Combined HTTP server: REST API + WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, validator, engine, runner))
	httpMux.Handle("/ws/tasks", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("assetmanaged shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
