package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/utils"
)

// RecordAdder receives the records produced by ingestion.
type RecordAdder interface {
	Add(record domain.Screenshot) (domain.Screenshot, error)
}

type IngestionService interface {
	// StoreAssets validates and stores each file, returning descriptors
	// without touching the collection.
	StoreAssets(ctx context.Context, files []domain.FileCandidate) domain.IngestSummary
	// Ingest stores each file and adds a record for every stored asset.
	Ingest(ctx context.Context, files []domain.FileCandidate) (domain.IngestSummary, error)
	// IngestPaths ingests files from the local file system.
	IngestPaths(ctx context.Context, paths []string) (domain.IngestSummary, error)
}

type ingestionService struct {
	assets  *repository.AssetRepository
	records RecordAdder
	mirror  MirrorService
	proc    *utils.ImageProcessor
	cfg     *config.AppConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewIngestionService(assets *repository.AssetRepository, records RecordAdder, mirror MirrorService, cfg *config.AppConfig, log *zap.Logger) IngestionService {
	return &ingestionService{
		assets:  assets,
		records: records,
		mirror:  mirror,
		proc:    utils.NewImageProcessor(log),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *ingestionService) StoreAssets(ctx context.Context, files []domain.FileCandidate) domain.IngestSummary {
	summary := domain.IngestSummary{
		Assets:     []domain.UploadedAsset{},
		Rejections: []domain.Rejection{},
	}

	for _, file := range files {
		asset, err := s.storeOne(ctx, file)
		if err != nil {
			s.log.Warn("File rejected",
				zap.String("file", file.Name),
				zap.Error(err))
			summary.Failed++
			summary.Rejections = append(summary.Rejections, domain.Rejection{
				Name:   file.Name,
				Reason: rejectionReason(err),
			})
			continue
		}
		summary.Succeeded++
		summary.Assets = append(summary.Assets, *asset)
	}

	s.log.Info("Batch stored",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	return summary
}

func (s *ingestionService) Ingest(ctx context.Context, files []domain.FileCandidate) (domain.IngestSummary, error) {
	summary := s.StoreAssets(ctx, files)

	var saveErr error
	for i, asset := range summary.Assets {
		record, err := s.records.Add(asset.Record())
		// Add keeps the record in memory even when the save fails.
		summary.Assets[i].ID = record.ID
		if err != nil && saveErr == nil {
			saveErr = err
		}
	}

	if saveErr != nil {
		return summary, fmt.Errorf("failed to persist ingested screenshots: %w", saveErr)
	}
	return summary, nil
}

func (s *ingestionService) IngestPaths(ctx context.Context, paths []string) (domain.IngestSummary, error) {
	files := make([]domain.FileCandidate, 0, len(paths))
	for _, p := range paths {
		path := p
		var size int64 = -1
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		files = append(files, domain.FileCandidate{
			Name: filepath.Base(path),
			Size: size,
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return s.Ingest(ctx, files)
}

func (s *ingestionService) storeOne(ctx context.Context, file domain.FileCandidate) (*domain.UploadedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "cancelled", Err: err}
	}
	if file.Size > s.cfg.MaxUploadSize {
		return nil, &domain.IngestionError{
			Name:   file.Name,
			Reason: fmt.Sprintf("file too large: %d bytes (max %d)", file.Size, s.cfg.MaxUploadSize),
		}
	}
	if file.Open == nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "no content"}
	}

	src, err := file.Open()
	if err != nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "failed to open file", Err: err}
	}
	defer src.Close()

	// Read one byte past the limit so a size that lied is still caught.
	data, err := io.ReadAll(io.LimitReader(src, s.cfg.MaxUploadSize+1))
	if err != nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "failed to read file", Err: err}
	}
	if int64(len(data)) > s.cfg.MaxUploadSize {
		return nil, &domain.IngestionError{
			Name:   file.Name,
			Reason: fmt.Sprintf("file too large (max %d bytes)", s.cfg.MaxUploadSize),
		}
	}

	info, err := s.proc.Inspect(data)
	if err != nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "invalid file type. Only images are allowed", Err: err}
	}
	if !s.allowed(info.ContentType) {
		return nil, &domain.IngestionError{
			Name:   file.Name,
			Reason: fmt.Sprintf("unsupported image type %s", info.ContentType),
		}
	}

	now := s.now().UTC()
	name := s.assets.Reserve(StoredNameBase(now), utils.ExtensionFor(file.Name, info.ContentType))
	defer s.assets.Release(name)

	size, err := s.assets.Save(name, bytes.NewReader(data))
	if err != nil {
		return nil, &domain.IngestionError{Name: file.Name, Reason: "failed to store file", Err: err}
	}

	if s.mirror != nil && s.mirror.Enabled() {
		if err := s.mirror.MirrorAsset(ctx, name, info.ContentType, data); err != nil {
			s.log.Warn("Asset mirror failed",
				zap.String("file", name),
				zap.Error(err))
		}
	}

	s.log.Info("Screenshot stored",
		zap.String("original", file.Name),
		zap.String("filename", name),
		zap.Int64("size", size))

	return &domain.UploadedAsset{
		ID:           newAssetID(),
		Filename:     name,
		OriginalName: file.Name,
		Path:         s.assets.RelativePath(name),
		Size:         size,
		MimeType:     info.ContentType,
		Width:        info.Width,
		Height:       info.Height,
		Date:         now.Truncate(time.Millisecond),
		Description:  "",
	}, nil
}

func (s *ingestionService) allowed(contentType string) bool {
	for _, t := range s.cfg.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), contentType) {
			return true
		}
	}
	return false
}

func newAssetID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// StoredNameBase is "screenshot-" plus the UTC timestamp with ':' and '.'
// replaced so the result is a portable file name.
func StoredNameBase(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "screenshot-" + ts
}

func rejectionReason(err error) string {
	var ierr *domain.IngestionError
	if errors.As(err, &ierr) {
		return ierr.Reason
	}
	return err.Error()
}
