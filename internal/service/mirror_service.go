package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/utils"
)

const (
	assetPrefix    = "screenshots/"
	snapshotPrefix = "snapshots/"
	latestSnapshot = snapshotPrefix + "latest.json"
)

// ErrMirrorDisabled is returned by mirror operations when no S3 bucket is configured.
var ErrMirrorDisabled = errors.New("S3 mirror is disabled")

// Snapshotter lists the current collection.
type Snapshotter interface {
	List() []domain.Screenshot
}

// MirrorService copies assets and collection snapshots to S3.
type MirrorService interface {
	Enabled() bool
	MirrorAsset(ctx context.Context, filename, contentType string, data []byte) error
	Backup(ctx context.Context) (*domain.BackupResult, error)
	SyncMissingAssets(ctx context.Context) (int, error)
}

type mirrorService struct {
	s3     repository.S3Repository
	assets *repository.AssetRepository
	store  Snapshotter
	proc   *utils.ImageProcessor
	log    *zap.Logger
	now    func() time.Time
}

// NewMirrorService returns a disabled mirror when s3 is nil.
func NewMirrorService(s3 repository.S3Repository, assets *repository.AssetRepository, store Snapshotter, log *zap.Logger) MirrorService {
	return &mirrorService{
		s3:     s3,
		assets: assets,
		store:  store,
		proc:   utils.NewImageProcessor(log),
		log:    log,
		now:    time.Now,
	}
}

func (m *mirrorService) Enabled() bool {
	return m.s3 != nil
}

func (m *mirrorService) MirrorAsset(ctx context.Context, filename, contentType string, data []byte) error {
	if !m.Enabled() {
		return ErrMirrorDisabled
	}
	return m.s3.UploadFile(ctx, assetPrefix+filename, bytes.NewReader(data), contentType)
}

// Backup uploads a timestamped snapshot, points latest.json at it, and
// uploads every local asset the bucket does not have yet.
func (m *mirrorService) Backup(ctx context.Context) (*domain.BackupResult, error) {
	if !m.Enabled() {
		return nil, ErrMirrorDisabled
	}

	records := m.store.List()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := snapshotPrefix + "screenshots-" + m.now().UTC().Format("20060102T150405Z") + ".json"
	if err := m.s3.UploadFile(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}
	if err := m.s3.CopyFile(ctx, key, latestSnapshot); err != nil {
		return nil, fmt.Errorf("failed to update latest snapshot: %w", err)
	}

	result := &domain.BackupResult{
		SnapshotKey: key,
		LatestKey:   latestSnapshot,
		Records:     len(records),
	}

	remote, err := m.remoteAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrored assets: %w", err)
	}

	local, err := m.assets.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list local assets: %w", err)
	}

	for _, name := range local {
		if _, ok := remote[name]; ok {
			continue
		}
		if err := m.uploadLocal(ctx, name); err != nil {
			m.log.Warn("Failed to back up asset",
				zap.String("file", name),
				zap.Error(err))
			result.AssetsFailed++
			continue
		}
		result.AssetsUploaded++
	}

	m.log.Info("Backup complete",
		zap.String("snapshot", key),
		zap.Int("records", result.Records),
		zap.Int("assets_uploaded", result.AssetsUploaded),
		zap.Int("assets_failed", result.AssetsFailed))

	return result, nil
}

// SyncMissingAssets downloads mirrored assets absent from the local directory.
func (m *mirrorService) SyncMissingAssets(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, ErrMirrorDisabled
	}

	keys, err := m.s3.ListFiles(ctx, assetPrefix)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, key := range keys {
		name := path.Base(key)
		if name == "" || name == "." || m.assets.Exists(name) {
			continue
		}

		body, err := m.s3.DownloadFile(ctx, key)
		if err != nil {
			m.log.Warn("Failed to download asset",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		_, err = m.assets.Save(name, body)
		body.Close()
		if err != nil {
			m.log.Warn("Failed to restore asset",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		restored++
	}

	m.log.Info("Asset sync complete",
		zap.Int("remote", len(keys)),
		zap.Int("restored", restored))

	return restored, nil
}

func (m *mirrorService) remoteAssets(ctx context.Context) (map[string]struct{}, error) {
	keys, err := m.s3.ListFiles(ctx, assetPrefix)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[path.Base(key)] = struct{}{}
	}
	return set, nil
}

func (m *mirrorService) uploadLocal(ctx context.Context, name string) error {
	f, err := m.assets.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	contentType := m.proc.DetectContentType(head[:n])
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	return m.s3.UploadFile(ctx, assetPrefix+filepath.Base(name), f, contentType)
}
