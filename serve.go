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

	"github.com/spf13/cobra"

	"github.com/s1natex/owned-tasks-api/internal/config"
	"github.com/s1natex/owned-tasks-api/internal/tasks"
	"github.com/s1natex/owned-tasks-api/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger) // for third-party packages that use slog

	if err := serve(cmd.Context(), cfg, logger); err != nil {
		logger.Error("server_error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func serve(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := migrateStore(ctx, store); err != nil {
		return err
	}

	svc := tasks.NewService(store)
	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newRouter(cfg, svc, tp, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", cfg.HTTP.Address), slog.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore builds the configured store and a func that releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (tasks.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return tasks.NewMemoryStore(), func() {}, nil

	case "sqlite":
		dsn, err := tasks.SQLiteFileDSN(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite path: %w", err)
		}
		s, err := tasks.NewSQLiteStore(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, closer(s.Close, logger), nil

	case "postgres":
		s, err := tasks.NewPostgresStore(ctx, logger, cfg.PostgresDSN, cfg.ConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s.Close, logger), nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func migrateStore(ctx context.Context, store tasks.Store) error {
	m, ok := store.(tasks.Migrator)
	if !ok {
		return nil
	}
	if err := m.ApplyMigrations(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func closer(fn func() error, logger *slog.Logger) func() {
	return func() {
		if err := fn(); err != nil {
			logger.Error("store_close_failed", slog.String("error", err.Error()))
		}
	}
}
