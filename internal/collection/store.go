// Package collection owns the in-memory screenshot collection: the ordered
// record list, its persistence policy, filtering, and intent dispatch.
package collection

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/debounce"
)

// DefaultAutosaveDelay is the quiet window for description edits.
const DefaultAutosaveDelay = time.Second

// Gateway persists full snapshots of the collection.
type Gateway interface {
	Load() ([]domain.Screenshot, error)
	Save([]domain.Screenshot) error
}

// Store is the authoritative, newest-first list of screenshot records.
// Discrete mutations save synchronously; description edits are coalesced
// by the autosave debouncer.
type Store struct {
	mu      sync.RWMutex
	records []domain.Screenshot

	// saveMu orders snapshots so an older one never overwrites a newer one.
	saveMu   sync.Mutex
	gateway  Gateway
	autosave *debounce.Debouncer
	log      *zap.Logger

	now   func() time.Time
	newID func() string

	lastSaveErr error
}

type Option func(*Store)

// WithClock replaces time.Now for record dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the UUIDv7 id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(gateway Gateway, autosaveDelay time.Duration, log *zap.Logger, opts ...Option) *Store {
	if autosaveDelay <= 0 {
		autosaveDelay = DefaultAutosaveDelay
	}
	s := &Store{
		records:  []domain.Screenshot{},
		gateway:  gateway,
		autosave: debounce.New(autosaveDelay),
		log:      log,
		now:      time.Now,
		newID:    newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load replaces the in-memory state with the gateway's snapshot.
// A pending autosave is dropped; its edits are superseded by the reload.
func (s *Store) Load() error {
	records, err := s.gateway.Load()
	if err != nil {
		return err
	}

	s.autosave.Cancel()

	s.mu.Lock()
	s.records = s.normalize(records)
	count := len(s.records)
	s.mu.Unlock()

	s.log.Info("Collection loaded", zap.Int("count", count))
	return nil
}

// List returns a copy of the collection in display order.
func (s *Store) List() []domain.Screenshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Screenshot, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Get(id string) (domain.Screenshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.records[i], true
	}
	return domain.Screenshot{}, false
}

// Export returns the collection in its id-less file format.
func (s *Store) Export() []domain.ExportEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ExportEntry, 0, len(s.records))
	for _, r := range s.records {
		entries = append(entries, r.Entry())
	}
	return entries
}

// Add prepends record and saves. Blank id and date are filled in.
func (s *Store) Add(record domain.Screenshot) (domain.Screenshot, error) {
	s.mu.Lock()
	if record.ID == "" || s.indexOf(record.ID) >= 0 {
		record.ID = s.newID()
	}
	if record.Date.IsZero() {
		record.Date = s.timestamp()
	}
	s.records = prepend(s.records, record)
	s.mu.Unlock()

	s.log.Debug("Screenshot added",
		zap.String("id", record.ID),
		zap.String("filename", record.Filename))

	return record, s.saveNow()
}

// Remove deletes the record with id. It reports whether one was removed;
// an unknown id is not an error and does not touch the backing file.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.records = append(s.records[:i:i], s.records[i+1:]...)
	s.mu.Unlock()

	s.log.Debug("Screenshot removed", zap.String("id", id))
	return true, s.saveNow()
}

// UpdateDescription replaces the description of id and schedules an autosave.
// It reports whether the record exists.
func (s *Store) UpdateDescription(id, text string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.records[i].Description = text
	s.mu.Unlock()

	s.autosave.Schedule(s.autosaveNow)
	return true
}

// Clear empties the collection and saves.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.records = []domain.Screenshot{}
	s.mu.Unlock()

	s.log.Info("Collection cleared")
	return s.saveNow()
}

// ReplaceAll swaps in records wholesale and saves.
func (s *Store) ReplaceAll(records []domain.Screenshot) error {
	s.mu.Lock()
	s.records = s.normalize(records)
	count := len(s.records)
	s.mu.Unlock()

	s.log.Info("Collection replaced", zap.Int("count", count))
	return s.saveNow()
}

// ImportMerge prepends every candidate whose filename is not yet present
// and returns how many were added. Candidates without filename or path are
// skipped, as are repeats of a filename within the same batch.
func (s *Store) ImportMerge(candidates []domain.ExportEntry) (int, error) {
	s.mu.Lock()
	existing := make(map[string]struct{}, len(s.records)+len(candidates))
	for _, r := range s.records {
		existing[r.Filename] = struct{}{}
	}

	added := 0
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		if _, dup := existing[c.Filename]; dup {
			continue
		}
		existing[c.Filename] = struct{}{}

		record := domain.Screenshot{
			ID:          s.newID(),
			Filename:    c.Filename,
			Path:        c.Path,
			Description: c.Description,
			Date:        c.Date,
		}
		if record.Date.IsZero() {
			record.Date = s.timestamp()
		}
		s.records = prepend(s.records, record)
		added++
	}
	s.mu.Unlock()

	s.log.Info("Import merged",
		zap.Int("candidates", len(candidates)),
		zap.Int("added", added))

	if added == 0 {
		return 0, nil
	}
	return added, s.saveNow()
}

// Flush writes a pending autosave immediately.
func (s *Store) Flush() error {
	if !s.autosave.Pending() {
		return nil
	}
	s.autosave.Cancel()
	return s.saveNow()
}

func (s *Store) Close() error {
	return s.Flush()
}

// AutosavePending reports whether a debounced save is waiting.
func (s *Store) AutosavePending() bool {
	return s.autosave.Pending()
}

// LastSaveError is the result of the most recent save attempt.
func (s *Store) LastSaveError() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.lastSaveErr
}

func (s *Store) saveNow() error {
	// A synchronous save writes the latest state; a pending autosave would be redundant.
	s.autosave.Cancel()
	return s.persist()
}

func (s *Store) autosaveNow() {
	if err := s.persist(); err != nil {
		s.log.Error("Autosave failed", zap.Error(err))
	}
}

func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snapshot := s.List()
	err := s.gateway.Save(snapshot)
	s.lastSaveErr = err
	if err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// normalize applies defaults and re-issues blank or duplicate ids.
func (s *Store) normalize(records []domain.Screenshot) []domain.Screenshot {
	out := make([]domain.Screenshot, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			r.ID = s.newID()
		}
		if _, dup := seen[r.ID]; dup {
			r.ID = s.newID()
		}
		seen[r.ID] = struct{}{}
		if r.Date.IsZero() {
			r.Date = s.timestamp()
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func prepend(records []domain.Screenshot, r domain.Screenshot) []domain.Screenshot {
	records = append(records, domain.Screenshot{})
	copy(records[1:], records)
	records[0] = r
	return records
}
