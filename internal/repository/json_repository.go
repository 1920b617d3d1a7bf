package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
)

// JSONRepository keeps the whole collection in one JSON array file and
// serves the named JSON files of the data directory.
type JSONRepository struct {
	path    string
	dataDir string
	rootDir string
	log     *zap.Logger
}

func NewJSONRepository(path, dataDir, rootDir string, log *zap.Logger) *JSONRepository {
	return &JSONRepository{
		path:    path,
		dataDir: dataDir,
		rootDir: rootDir,
		log:     log,
	}
}

func (r *JSONRepository) Path() string {
	return r.path
}

// Load reads the snapshot. A missing file is an empty collection.
func (r *JSONRepository) Load() ([]domain.Screenshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.Screenshot{}, nil
		}
		return nil, &domain.CorruptStoreError{Path: r.path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 || !isJSONArray(data) {
		return nil, &domain.CorruptStoreError{Path: r.path, Err: errors.New("content is not a JSON array")}
	}

	var records []domain.Screenshot
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &domain.CorruptStoreError{Path: r.path, Err: err}
	}
	if records == nil {
		records = []domain.Screenshot{}
	}

	r.log.Debug("Collection loaded",
		zap.String("path", r.path),
		zap.Int("count", len(records)))

	return records, nil
}

// Save replaces the snapshot with records.
func (r *JSONRepository) Save(records []domain.Screenshot) error {
	if records == nil {
		records = []domain.Screenshot{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: r.path, Err: err}
	}

	if err := writeFileAtomic(r.path, data); err != nil {
		r.log.Error("Failed to save collection",
			zap.String("path", r.path),
			zap.Error(err))
		return &domain.PersistenceError{Path: r.path, Err: err}
	}

	r.log.Debug("Collection saved",
		zap.String("path", r.path),
		zap.Int("count", len(records)))

	return nil
}

// LoadBlob reads a named JSON file from the data dir, falling back to the root dir.
func (r *JSONRepository) LoadBlob(name string) (*domain.Blob, error) {
	if err := ValidateBlobName(name); err != nil {
		return nil, err
	}

	for _, dir := range []string{r.dataDir, r.rootDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return nil, &domain.CorruptStoreError{Path: path, Err: errors.New("invalid JSON")}
		}

		return &domain.Blob{
			Name: name,
			Path: path,
			Size: FormatFileSize(info.Size()),
			Data: json.RawMessage(data),
		}, nil
	}

	return nil, fmt.Errorf("JSON file %s: %w", name, domain.ErrNotFound)
}

// SaveBlob writes raw JSON, re-indented, to the data dir.
func (r *JSONRepository) SaveBlob(name string, raw []byte) (*domain.Blob, error) {
	if err := ValidateBlobName(name); err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, domain.NewValidationError("body", "must be valid JSON")
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, domain.NewValidationError("body", err.Error())
	}

	path := filepath.Join(r.dataDir, name)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return nil, &domain.PersistenceError{Path: path, Err: err}
	}

	r.log.Info("JSON file saved",
		zap.String("path", path),
		zap.Int("size", buf.Len()))

	return &domain.Blob{
		Name: name,
		Path: path,
		Size: FormatFileSize(int64(buf.Len())),
	}, nil
}

// ListBlobs lists *.json in the data dir and then the root dir.
func (r *JSONRepository) ListBlobs() ([]domain.BlobFile, error) {
	var files []domain.BlobFile

	locations := []struct {
		dir, name string
	}{
		{r.dataDir, "data"},
		{r.rootDir, "root"},
	}

	for _, loc := range locations {
		if loc.dir == "" {
			continue
		}
		entries, err := os.ReadDir(loc.dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to list %s: %w", loc.dir, err)
		}

		var found []domain.BlobFile
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				r.log.Warn("Skipping unreadable file",
					zap.String("file", entry.Name()),
					zap.Error(err))
				continue
			}
			found = append(found, domain.BlobFile{
				Name:     entry.Name(),
				Path:     filepath.Join(loc.dir, entry.Name()),
				Location: loc.name,
				Size:     FormatFileSize(info.Size()),
				Modified: info.ModTime().UTC(),
			})
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
		files = append(files, found...)
	}

	return files, nil
}

// ValidateBlobName rejects names that could leave the data directory.
func ValidateBlobName(name string) error {
	if name == "" || name == "." ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) {
		return domain.NewValidationError("filename", "invalid filename")
	}
	return nil
}

// FormatFileSize renders a byte count as B, KB, MB or GB with at most two decimals.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	const k = 1024
	sizes := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(k)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(bytes) / math.Pow(k, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizes[i]
}

func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
