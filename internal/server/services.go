package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/collection"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/service"
)

// Services is the wired application core shared by the HTTP server and the CLI.
type Services struct {
	Store       *collection.Store
	Records     *repository.JSONRepository
	Assets      *repository.AssetRepository
	Screenshots service.ScreenshotService
	Ingestion   service.IngestionService
	Mirror      service.MirrorService
}

// NewServices builds repositories and services and loads the collection.
// A corrupt store file is reported but leaves an empty collection.
func NewServices(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Services, error) {
	records := repository.NewJSONRepository(cfg.App.StorePath(), cfg.App.DataDir, cfg.App.RootDir, log)
	assets := repository.NewAssetRepository(cfg.App.ScreenshotsDir, assetPrefix(&cfg.App), log)

	store := collection.NewStore(records, cfg.App.AutosaveDelay, log)
	if err := store.Load(); err != nil {
		log.Error("Failed to load screenshots, starting empty",
			zap.String("path", records.Path()),
			zap.Error(err))
	}

	var s3Repo repository.S3Repository
	if cfg.S3.Enabled {
		repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 repository: %w", err)
		}
		s3Repo = repo
	}

	mirror := service.NewMirrorService(s3Repo, assets, store, log)

	return &Services{
		Store:       store,
		Records:     records,
		Assets:      assets,
		Screenshots: service.NewScreenshotService(store, records, mirror, &cfg.App, log),
		Ingestion:   service.NewIngestionService(assets, store, mirror, &cfg.App, log),
		Mirror:      mirror,
	}, nil
}

// Close flushes pending edits to disk.
func (s *Services) Close() error {
	return s.Store.Close()
}

func assetPrefix(cfg *config.AppConfig) string {
	rel, err := filepath.Rel(cfg.RootDir, cfg.ScreenshotsDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "assets/screenshots"
	}
	return filepath.ToSlash(rel)
}
