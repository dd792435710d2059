package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CatalogImport/internal/app"
	"github.com/JonMunkholm/CatalogImport/internal/service"
	"github.com/JonMunkholm/CatalogImport/internal/storage/postgres"
)

type importFlags struct {
	file              string
	behavior          string
	strategy          string
	allowedErrorCount int
	migrate           bool
}

func newImportCmd() *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "products:import",
		Short: "Import products from a CSV or XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(f.file)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.file, err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if f.migrate {
				if err := postgres.Migrate(ctx, pool); err != nil {
					return err
				}
			}

			imports, err := app.NewService(ctx, cfg, pool, nil)
			if err != nil {
				return err
			}

			req := service.Request{
				FileName: filepath.Base(f.file),
				Data:     data,
				Behavior: f.behavior,
				Strategy: f.strategy,
			}
			if cmd.Flags().Changed("allowed-errors") {
				req.AllowedErrorCount = &f.allowedErrorCount
			}

			id, err := imports.Start(ctx, req)
			if err != nil {
				return err
			}
			res, err := imports.Result(ctx, id)
			if err != nil {
				return err
			}

			if err := writeResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Phase != service.PhaseCompleted {
				return fmt.Errorf("import %s: %s", res.Phase, res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Path to the import file (required)")
	cmd.Flags().StringVar(&f.behavior, "behavior", "", "append, replace or delete (default from IMPORT_BEHAVIOR)")
	cmd.Flags().StringVar(&f.strategy, "validation-strategy", "", "skip-errors or stop-on-error (default from IMPORT_VALIDATION_STRATEGY)")
	cmd.Flags().IntVar(&f.allowedErrorCount, "allowed-errors", 0, "Critical errors tolerated under stop-on-error")
	cmd.Flags().BoolVar(&f.migrate, "migrate", false, "Apply the schema before importing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func writeResult(w io.Writer, res *service.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
