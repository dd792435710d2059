// Package app wires the importer collaborators shared by the HTTP server
// and the command line tool.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/CatalogImport/internal/category"
	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/core"
	_ "github.com/JonMunkholm/CatalogImport/internal/core/producttypes" // Register product types
	"github.com/JonMunkholm/CatalogImport/internal/media"
	"github.com/JonMunkholm/CatalogImport/internal/service"
	"github.com/JonMunkholm/CatalogImport/internal/storage/postgres"
	"github.com/JonMunkholm/CatalogImport/internal/structural"
)

// NewService builds an import service over pool. observer may be nil.
func NewService(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, observer core.Observer) (*service.Service, error) {
	deps, err := Dependencies(ctx, cfg, pool, observer)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context) (*core.Snapshot, error) {
		return postgres.LoadSnapshot(ctx, pool)
	}
	return service.New(cfg.Import, load, deps), nil
}

// Dependencies returns the collaborators of a run except the catalog
// metadata, which the service loads per run.
func Dependencies(ctx context.Context, cfg *config.Config, db postgres.DB, observer core.Observer) (core.Dependencies, error) {
	validator, err := structural.New(nil)
	if err != nil {
		return core.Dependencies{}, fmt.Errorf("structural rules: %w", err)
	}

	backend, err := MediaBackend(ctx, cfg.Media)
	if err != nil {
		return core.Dependencies{}, err
	}

	return core.Dependencies{
		Writer:     postgres.NewWriter(db),
		Structural: validator,
		Options:    core.CustomOptionValidator{},
		Categories: category.NewProcessor(postgres.NewCategoryStore(db), slog.Default()),
		Uploader: media.NewUploader(backend, media.Options{
			ImportDir:    cfg.Media.ImportDir,
			AllowedHosts: cfg.Media.AllowedHosts,
			FetchTimeout: cfg.Media.FetchTimeout,
		}),
		Images:     postgres.NewImageIndex(db),
		Stock:      postgres.NewStockRegistry(db),
		TaxClasses: postgres.NewTaxClassResolver(db),
		Observer:   observer,
	}, nil
}

// MediaBackend returns the image store selected by cfg.Backend.
func MediaBackend(ctx context.Context, cfg config.MediaConfig) (media.Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return media.NewLocalBackend(cfg.LocalDir), nil
	case "s3":
		client, err := media.NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return media.NewS3Backend(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}
