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

	_ "go.uber.org/automaxprocs/maxprocs"

	"modrepo/internal/server/api"
	"modrepo/internal/server/config"
	"modrepo/internal/server/database"
	"modrepo/internal/server/service"
	"modrepo/internal/server/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, config.Load())
	stop()
	if err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited cleanly")
}

// run wires the catalog together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"sweep_interval", cfg.SweepInterval,
	)

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewFileSystemStore(cfg.StoragePath)
	if err != nil {
		return err
	}
	if err := store.EnsureDirs(); err != nil {
		return err
	}
	slog.Info("file storage initialized", "root", store.Root(), "images", store.ImagesRoot())

	repo := database.NewRepository(db)
	catalog := service.NewCatalogService(repo, store, cfg)

	sweepCtx, sweepCancel := context.WithCancel(context.WithoutCancel(ctx))
	sweeper := storage.NewSweeper(repo, store, cfg.SweepInterval, cfg.SweepGrace)
	sweeper.Start(sweepCtx)
	defer func() {
		sweepCancel()
		sweeper.Wait()
	}()

	e := api.SetupRouter(api.NewHandler(catalog), cfg)

	serveErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		serveErr <- e.Start(addr)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "reason", context.Cause(ctx))

	// Stop accepting new requests, finish in-flight ones within the timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}
