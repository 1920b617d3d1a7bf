package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/collection"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/utils"
)

const (
	AppName        = "Screenshot Note"
	AppVersion     = "1.0.0"
	appDescription = "Personal Screenshot Wiki with Note Management"
)

var features = []string{
	"screenshot-upload",
	"description-editing",
	"search-filtering",
	"json-import-export",
	"fullscreen-viewer",
	"drag-drop-support",
}

// ScreenshotService is the collection API used by the HTTP handlers and the CLI.
type ScreenshotService interface {
	List(query string) []domain.Screenshot
	SaveAll(records []domain.Screenshot) error
	UpdateDescription(id, description string) error
	Remove(id string) (bool, error)
	Clear() error
	Import(entries []domain.ExportEntry) (added, skipped int, err error)
	Export() []domain.ExportEntry
	LoadSample(name string) (int, error)
	Info() domain.Info

	ListData() ([]domain.BlobFile, error)
	LoadData(name string) (*domain.Blob, error)
	SaveData(name string, raw []byte) (*domain.Blob, error)
}

type screenshotService struct {
	store  *collection.Store
	repo   *repository.JSONRepository
	mirror MirrorService
	cfg    *config.AppConfig
	log    *zap.Logger
}

func NewScreenshotService(store *collection.Store, repo *repository.JSONRepository, mirror MirrorService, cfg *config.AppConfig, log *zap.Logger) ScreenshotService {
	return &screenshotService{
		store:  store,
		repo:   repo,
		mirror: mirror,
		cfg:    cfg,
		log:    log,
	}
}

func (s *screenshotService) List(query string) []domain.Screenshot {
	return collection.Filter(s.store.List(), query)
}

func (s *screenshotService) SaveAll(records []domain.Screenshot) error {
	_, err := s.store.Dispatch(collection.ReplaceRequested{Records: records})
	return err
}

func (s *screenshotService) UpdateDescription(id, description string) error {
	_, err := s.store.Dispatch(collection.DescriptionEdited{ID: id, Text: description})
	return err
}

func (s *screenshotService) Remove(id string) (bool, error) {
	out, err := s.store.Dispatch(collection.RemoveRequested{ID: id})
	return out.Changed, err
}

func (s *screenshotService) Clear() error {
	_, err := s.store.Dispatch(collection.ClearRequested{})
	return err
}

func (s *screenshotService) Import(entries []domain.ExportEntry) (int, int, error) {
	valid := 0
	for _, e := range entries {
		if e.Valid() {
			valid++
		}
	}
	if valid == 0 {
		return 0, len(entries), domain.NewValidationError("", "No valid screenshot entries found")
	}

	out, err := s.store.Dispatch(collection.ImportRequested{Entries: entries})
	if err != nil {
		return out.Added, len(entries) - out.Added, err
	}
	return out.Added, len(entries) - out.Added, nil
}

func (s *screenshotService) Export() []domain.ExportEntry {
	return s.store.Export()
}

// LoadSample replaces the collection with the entries of a named data file.
func (s *screenshotService) LoadSample(name string) (int, error) {
	blob, err := s.repo.LoadBlob(name)
	if err != nil {
		return 0, err
	}

	var entries []domain.ExportEntry
	if err := json.Unmarshal(blob.Data, &entries); err != nil {
		return 0, domain.NewValidationError(name, "expected an array of screenshots")
	}

	records := make([]domain.Screenshot, 0, len(entries))
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		records = append(records, domain.Screenshot{
			Filename:    e.Filename,
			Path:        e.Path,
			Description: e.Description,
			Date:        e.Date,
		})
	}

	if err := s.store.ReplaceAll(records); err != nil {
		return 0, fmt.Errorf("failed to load sample data: %w", err)
	}
	return len(records), nil
}

func (s *screenshotService) Info() domain.Info {
	return domain.Info{
		Name:             AppName,
		Version:          AppVersion,
		Description:      appDescription,
		Features:         features,
		DataDir:          s.cfg.DataDir,
		AssetsDir:        s.cfg.ScreenshotsDir,
		SupportedFormats: utils.ExtensionsForTypes(s.cfg.AllowedTypes),
		Count:            s.store.Len(),
		MirrorEnabled:    s.mirror != nil && s.mirror.Enabled(),
	}
}

func (s *screenshotService) ListData() ([]domain.BlobFile, error) {
	return s.repo.ListBlobs()
}

func (s *screenshotService) LoadData(name string) (*domain.Blob, error) {
	if s.isStoreFile(name) {
		if err := s.store.Flush(); err != nil {
			return nil, err
		}
	}
	return s.repo.LoadBlob(name)
}

// SaveData writes a named JSON file. The backing store file is replaced
// through the collection so memory and disk stay in step.
func (s *screenshotService) SaveData(name string, raw []byte) (*domain.Blob, error) {
	if !s.isStoreFile(name) {
		return s.repo.SaveBlob(name, raw)
	}

	var records []domain.Screenshot
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) || json.Unmarshal(raw, &records) != nil {
		return nil, domain.NewValidationError("body", "expected an array of screenshots")
	}

	if _, err := s.store.Dispatch(collection.ReplaceRequested{Records: records}); err != nil {
		return nil, err
	}

	path := s.repo.Path()
	size := "0 B"
	if info, err := os.Stat(path); err == nil {
		size = repository.FormatFileSize(info.Size())
	}

	s.log.Info("Collection replaced from data API",
		zap.String("path", path),
		zap.Int("count", s.store.Len()))

	return &domain.Blob{Name: name, Path: path, Size: size}, nil
}

func (s *screenshotService) isStoreFile(name string) bool {
	if repository.ValidateBlobName(name) != nil {
		return false
	}
	target, err := filepath.Abs(filepath.Join(s.cfg.DataDir, name))
	if err != nil {
		return false
	}
	store, err := filepath.Abs(s.repo.Path())
	if err != nil {
		return false
	}
	return target == store
}

// ExportFilename is the default name offered for an export on day t.
func ExportFilename(t time.Time) string {
	return "screenshot-notes-" + t.Format("2006-01-02") + ".json"
}
