package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/s1natex/owned-tasks-api/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tasks schema in the configured store and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

		store, closeStore, err := openStore(cmd.Context(), cfg.Store, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := migrateStore(cmd.Context(), store); err != nil {
			return err
		}
		logger.Info("migrations_applied", slog.String("store", cfg.Store.Driver))
		return nil
	},
}
