package collection

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/repository"
)

// memoryGateway records every snapshot it is asked to save.
type memoryGateway struct {
	mu      sync.Mutex
	loaded  []domain.Screenshot
	saves   [][]domain.Screenshot
	saveErr error
}

func (g *memoryGateway) Load() ([]domain.Screenshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Screenshot{}, g.loaded...), nil
}

func (g *memoryGateway) Save(records []domain.Screenshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saves = append(g.saves, append([]domain.Screenshot{}, records...))
	return nil
}

func (g *memoryGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saves)
}

func (g *memoryGateway) lastSave() []domain.Screenshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.saves) == 0 {
		return nil
	}
	return g.saves[len(g.saves)-1]
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

var fixedNow = time.Date(2025, 8, 22, 12, 0, 0, 0, time.UTC)

func newTestStore(gw Gateway, delay time.Duration) *Store {
	return NewStore(gw, delay, zap.NewNop(),
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return fixedNow }))
}

func TestAddPrependsAndSaves(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	first, err := s.Add(domain.Screenshot{Filename: "a.png", Path: "assets/screenshots/a.png"})
	require.NoError(t, err)
	second, err := s.Add(domain.Screenshot{Filename: "b.png", Path: "assets/screenshots/b.png"})
	require.NoError(t, err)

	assert.Equal(t, "id-1", first.ID)
	assert.Equal(t, fixedNow, first.Date)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 2, gw.saveCount())
}

func TestAddReissuesDuplicateID(t *testing.T) {
	s := newTestStore(&memoryGateway{}, time.Hour)

	a, err := s.Add(domain.Screenshot{ID: "x", Filename: "a.png"})
	require.NoError(t, err)
	b, err := s.Add(domain.Screenshot{ID: "x", Filename: "b.png"})
	require.NoError(t, err)

	assert.Equal(t, "x", a.ID)
	assert.NotEqual(t, "x", b.ID)
}

func TestRemoveIsIdempotent(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	rec, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.NoError(t, err)
	_, err = s.Add(domain.Screenshot{Filename: "b.png"})
	require.NoError(t, err)

	removed, err := s.Remove(rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	after := s.List()
	saves := gw.saveCount()

	removed, err = s.Remove(rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, after, s.List())
	assert.Equal(t, saves, gw.saveCount())
}

func TestUpdateDescriptionDebounced(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, 100*time.Millisecond)

	rec, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.NoError(t, err)
	base := gw.saveCount()

	for _, text := range []string{"c", "ca", "cat"} {
		assert.True(t, s.UpdateDescription(rec.ID, text))
	}
	assert.True(t, s.AutosavePending())

	assert.Eventually(t, func() bool { return gw.saveCount() == base+1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, base+1, gw.saveCount())

	saved := gw.lastSave()
	require.Len(t, saved, 1)
	assert.Equal(t, "cat", saved[0].Description)
	assert.Equal(t, fixedNow, saved[0].Date)
}

func TestUpdateDescriptionUnknownID(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	assert.False(t, s.UpdateDescription("missing", "text"))
	assert.False(t, s.AutosavePending())
}

func TestSynchronousSaveSupersedesAutosave(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	rec, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.NoError(t, err)
	require.True(t, s.UpdateDescription(rec.ID, "edited"))
	require.True(t, s.AutosavePending())

	_, err = s.Add(domain.Screenshot{Filename: "b.png"})
	require.NoError(t, err)

	assert.False(t, s.AutosavePending())
	saved := gw.lastSave()
	require.Len(t, saved, 2)
	assert.Equal(t, "edited", saved[1].Description)
}

func TestFlush(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	rec, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.NoError(t, err)
	require.True(t, s.UpdateDescription(rec.ID, "flushed"))

	require.NoError(t, s.Flush())
	assert.False(t, s.AutosavePending())
	assert.Equal(t, "flushed", gw.lastSave()[0].Description)

	count := gw.saveCount()
	require.NoError(t, s.Close())
	assert.Equal(t, count, gw.saveCount())
}

func TestClearAndReplaceAll(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	_, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, gw.lastSave())

	require.NoError(t, s.ReplaceAll([]domain.Screenshot{
		{ID: "dup", Filename: "x.png"},
		{ID: "dup", Filename: "y.png"},
		{Filename: "z.png"},
	}))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "dup", list[0].ID)
	assert.NotEqual(t, "dup", list[1].ID)
	assert.NotEmpty(t, list[2].ID)
	assert.Equal(t, fixedNow, list[2].Date)
	assert.Len(t, gw.lastSave(), 3)
}

func TestImportMerge(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	_, err := s.Add(domain.Screenshot{Filename: "a.png", Path: "assets/screenshots/a.png"})
	require.NoError(t, err)

	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	candidates := []domain.ExportEntry{
		{Filename: "a.png", Path: "assets/screenshots/a.png", Description: "dup of existing"},
		{Filename: "b.png", Path: "assets/screenshots/b.png", Description: "kept", Date: date},
		{Filename: "b.png", Path: "assets/screenshots/b.png", Description: "dup within batch"},
		{Filename: "c.png", Path: "assets/screenshots/c.png"},
		{Filename: "", Path: "assets/screenshots/none.png"},
		{Filename: "d.png"},
	}

	added, err := s.ImportMerge(candidates)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c.png", list[0].Filename)
	assert.Equal(t, "", list[0].Description)
	assert.Equal(t, fixedNow, list[0].Date)
	assert.Equal(t, "b.png", list[1].Filename)
	assert.Equal(t, "kept", list[1].Description)
	assert.Equal(t, date, list[1].Date)
	assert.NotEqual(t, list[0].ID, list[1].ID)

	saves := gw.saveCount()
	added, err = s.ImportMerge(candidates)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, saves, gw.saveCount())
}

func TestImportMergeCountsUniqueFilenames(t *testing.T) {
	s := newTestStore(&memoryGateway{}, time.Hour)

	var candidates []domain.ExportEntry
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("shot-%d.png", i%4)
		candidates = append(candidates, domain.ExportEntry{Filename: name, Path: "assets/screenshots/" + name})
	}

	added, err := s.ImportMerge(candidates)
	require.NoError(t, err)
	assert.Equal(t, 4, added)
	assert.Equal(t, 4, s.Len())
}

func TestSaveErrorSurfaces(t *testing.T) {
	gw := &memoryGateway{saveErr: errors.New("disk full")}
	s := newTestStore(gw, time.Hour)

	_, err := s.Add(domain.Screenshot{Filename: "a.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Error(t, s.LastSaveError())

	// The in-memory state is kept so a later save can succeed.
	assert.Equal(t, 1, s.Len())
}

func TestLoadReplacesState(t *testing.T) {
	gw := &memoryGateway{loaded: []domain.Screenshot{
		{ID: "1", Filename: "a.png"},
		{ID: "2", Filename: "b.png"},
	}}
	s := newTestStore(gw, time.Hour)

	require.NoError(t, s.Load())
	assert.Equal(t, 2, s.Len())
	rec, ok := s.Get("2")
	require.True(t, ok)
	assert.Equal(t, "b.png", rec.Filename)
	assert.Equal(t, fixedNow, rec.Date)
}

func TestScenarioWithJSONRepository(t *testing.T) {
	dir := t.TempDir()
	repo := repository.NewJSONRepository(filepath.Join(dir, "screenshots.json"), dir, dir, zap.NewNop())
	s := NewStore(repo, 20*time.Millisecond, zap.NewNop())

	date := time.Date(2025, 8, 22, 9, 15, 0, 0, time.UTC)
	rec, err := s.Add(domain.Screenshot{
		Filename:    "a.png",
		Description: "",
		Date:        date,
		Path:        "assets/screenshots/a.png",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, rec.ID, loaded[0].ID)
	assert.Equal(t, "a.png", loaded[0].Filename)
	assert.Equal(t, "assets/screenshots/a.png", loaded[0].Path)
	assert.True(t, date.Equal(loaded[0].Date))

	require.True(t, s.UpdateDescription(rec.ID, "cat"))
	require.NoError(t, s.Flush())

	loaded, err = repo.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "cat", loaded[0].Description)
	assert.True(t, date.Equal(loaded[0].Date))
}

func TestDispatch(t *testing.T) {
	gw := &memoryGateway{}
	s := newTestStore(gw, time.Hour)

	out, err := s.Dispatch(AddRequested{Record: domain.Screenshot{Filename: "a.png", Path: "p"}})
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	id := out.Record.ID

	out, err = s.Dispatch(DescriptionEdited{ID: id, Text: "note"})
	require.NoError(t, err)
	assert.True(t, out.Changed)

	_, err = s.Dispatch(DescriptionEdited{ID: "missing", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err = s.Dispatch(ImportRequested{Entries: []domain.ExportEntry{{Filename: "b.png", Path: "p"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Added)

	out, err = s.Dispatch(RemoveRequested{ID: id})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, 1, s.Len())

	_, err = s.Dispatch(ClearRequested{})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	_, err = s.Dispatch(ReplaceRequested{Records: []domain.Screenshot{{Filename: "z.png"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}
