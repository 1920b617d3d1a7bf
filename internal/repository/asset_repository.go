package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// AssetRepository stores screenshot files in a single local directory.
type AssetRepository struct {
	dir    string
	prefix string
	log    *zap.Logger

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewAssetRepository stores files in dir; prefix is the relative path
// clients use to reach that directory (e.g. "assets/screenshots").
func NewAssetRepository(dir, prefix string, log *zap.Logger) *AssetRepository {
	_ = os.MkdirAll(dir, 0755)
	return &AssetRepository{
		dir:      dir,
		prefix:   strings.Trim(filepath.ToSlash(prefix), "/"),
		log:      log,
		reserved: make(map[string]struct{}),
	}
}

func (r *AssetRepository) Dir() string {
	return r.dir
}

// RelativePath is the path stored in records for filename.
func (r *AssetRepository) RelativePath(filename string) string {
	if r.prefix == "" {
		return filename
	}
	return r.prefix + "/" + filename
}

func (r *AssetRepository) AbsPath(filename string) string {
	return filepath.Join(r.dir, filepath.Base(filename))
}

func (r *AssetRepository) Exists(filename string) bool {
	_, err := os.Stat(r.AbsPath(filename))
	return err == nil
}

// Reserve claims a free file name built from base and ext. When base+ext is
// taken on disk or by an in-flight write, "-1", "-2", ... is appended.
// The caller must Release the name once the write finished or failed.
func (r *AssetRepository) Reserve(base, ext string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := base + ext
	for i := 1; ; i++ {
		if _, taken := r.reserved[name]; !taken && !r.Exists(name) {
			break
		}
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	r.reserved[name] = struct{}{}
	return name
}

func (r *AssetRepository) Release(name string) {
	r.mu.Lock()
	delete(r.reserved, name)
	r.mu.Unlock()
}

// Save streams body into filename via a ".part" file renamed on success.
func (r *AssetRepository) Save(filename string, body io.Reader) (int64, error) {
	absPath := r.AbsPath(filename)
	tmp := absPath + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	r.log.Debug("Asset stored",
		zap.String("path", absPath),
		zap.Int64("size", n))

	return n, nil
}

func (r *AssetRepository) Open(filename string) (*os.File, error) {
	return os.Open(r.AbsPath(filename))
}

// List returns the stored file names, skipping unfinished writes.
func (r *AssetRepository) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
