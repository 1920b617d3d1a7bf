package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
)

func newTestRepo(t *testing.T) (*JSONRepository, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	return NewJSONRepository(filepath.Join(dataDir, "screenshots.json"), dataDir, dir, zap.NewNop()), dir
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)

	records, err := repo.Load()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	date := time.Date(2025, 8, 22, 10, 30, 0, 123000000, time.UTC)

	want := []domain.Screenshot{
		{ID: "b", Filename: "b.png", Path: "assets/screenshots/b.png", Description: "second", Date: date.Add(time.Minute)},
		{ID: "a", Filename: "a.png", Path: "assets/screenshots/a.png", Description: "", Date: date},
	}
	require.NoError(t, repo.Save(want))

	got, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Filename, got[i].Filename)
		assert.Equal(t, want[i].Path, got[i].Path)
		assert.Equal(t, want[i].Description, got[i].Description)
		assert.True(t, want[i].Date.Equal(got[i].Date), "date %d", i)
	}

	// Saving what was loaded leaves the file unchanged.
	before, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	require.NoError(t, repo.Save(got))
	after, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	_, err = os.Stat(repo.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{not json"},
		{"object instead of array", `{"id": "1"}`},
		{"empty file", ""},
		{"truncated array", `[{"id": "1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(t)
			require.NoError(t, os.WriteFile(repo.Path(), []byte(tt.content), 0644))

			_, err := repo.Load()
			var corrupt *domain.CorruptStoreError
			assert.ErrorAs(t, err, &corrupt)
		})
	}
}

func TestLoadLegacyNumericIDs(t *testing.T) {
	repo, _ := newTestRepo(t)
	legacy := `[{"id": 1724312345678.123, "filename": "a.png", "path": "assets/screenshots/a.png", "description": "x", "date": "2025-08-22T08:00:00.000Z"}]`
	require.NoError(t, os.WriteFile(repo.Path(), []byte(legacy), 0644))

	records, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1724312345678.123", records[0].ID)
	assert.Equal(t, 2025, records[0].Date.Year())
}

func TestLoadBlankDate(t *testing.T) {
	repo, _ := newTestRepo(t)
	data := `[{"id": "1", "filename": "a.png", "path": "assets/screenshots/a.png", "date": ""}]`
	require.NoError(t, os.WriteFile(repo.Path(), []byte(data), 0644))

	records, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Date.IsZero())
}

func TestSaveFailsOnUnwritableTarget(t *testing.T) {
	dir := t.TempDir()
	// The target's parent is a regular file, so neither MkdirAll nor create can succeed.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	repo := NewJSONRepository(filepath.Join(blocker, "screenshots.json"), dir, dir, zap.NewNop())

	err := repo.Save([]domain.Screenshot{{ID: "1", Filename: "a.png"}})
	var perr *domain.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestBlobs(t *testing.T) {
	repo, root := newTestRepo(t)

	t.Run("save and load from data dir", func(t *testing.T) {
		blob, err := repo.SaveBlob("notes.json", []byte(`[{"filename":"a.png"}]`))
		require.NoError(t, err)
		assert.Equal(t, "notes.json", blob.Name)

		loaded, err := repo.LoadBlob("notes.json")
		require.NoError(t, err)
		var entries []map[string]any
		require.NoError(t, json.Unmarshal(loaded.Data, &entries))
		assert.Equal(t, "a.png", entries[0]["filename"])
	})

	t.Run("falls back to root dir", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "sample.json"), []byte(`[]`), 0644))

		loaded, err := repo.LoadBlob("sample.json")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "sample.json"), loaded.Path)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.LoadBlob("nope.json")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		for _, name := range []string{"../x.json", "a/b.json", `a\b.json`, "..", ""} {
			_, err := repo.LoadBlob(name)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr, name)

			_, err = repo.SaveBlob(name, []byte(`{}`))
			assert.ErrorAs(t, err, &verr, name)
		}
	})

	t.Run("rejects invalid json body", func(t *testing.T) {
		_, err := repo.SaveBlob("bad.json", []byte(`{`))
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0644))

		files, err := repo.ListBlobs()
		require.NoError(t, err)

		byName := map[string]domain.BlobFile{}
		for _, f := range files {
			byName[f.Name] = f
		}
		assert.Equal(t, "data", byName["notes.json"].Location)
		assert.Equal(t, "root", byName["sample.json"].Location)
		assert.NotContains(t, byName, "readme.txt")
	})
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.in))
	}
}
