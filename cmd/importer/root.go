package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Catalog import tools",
		SilenceUsage:  true,
	}
	cmd.AddCommand(newImportCmd())
	return cmd
}

// loadConfig reads .env and the environment and sends logs to stderr.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}
