package collection

import (
	"strings"
	"sync"
	"time"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/debounce"
)

// DefaultSearchDelay is the quiet window before a query change is applied.
const DefaultSearchDelay = 300 * time.Millisecond

// Filter returns the records whose description or filename contains term,
// ignoring case, in their original order. A blank term returns all records.
// The input slice is never modified.
func Filter(records []domain.Screenshot, term string) []domain.Screenshot {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]domain.Screenshot, 0, len(records))
	if needle == "" {
		return append(out, records...)
	}

	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Description), needle) ||
			strings.Contains(strings.ToLower(r.Filename), needle) {
			out = append(out, r)
		}
	}
	return out
}

// Source is anything that can list the current collection.
type Source interface {
	List() []domain.Screenshot
}

// SearchView keeps a filtered view of a Source. Query changes are
// rate-limited: only the last query within the quiet window is applied.
type SearchView struct {
	source   Source
	debounce *debounce.Debouncer
	onChange func(query string, results []domain.Screenshot)

	mu       sync.Mutex
	query    string
	override []domain.Screenshot
	results  []domain.Screenshot
}

// NewSearchView creates a view over source. onChange may be nil.
func NewSearchView(source Source, delay time.Duration, onChange func(string, []domain.Screenshot)) *SearchView {
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	v := &SearchView{
		source:   source,
		debounce: debounce.New(delay),
		onChange: onChange,
	}
	v.results = Filter(source.List(), "")
	return v
}

// SetQuery schedules a recompute with term.
func (v *SearchView) SetQuery(term string) {
	v.mu.Lock()
	v.query = term
	v.mu.Unlock()

	v.debounce.Schedule(func() { v.recompute() })
}

// SetOverride filters records instead of the source until cleared with nil.
func (v *SearchView) SetOverride(records []domain.Screenshot) {
	v.mu.Lock()
	if records == nil {
		v.override = nil
	} else {
		v.override = append([]domain.Screenshot{}, records...)
	}
	v.mu.Unlock()
}

// Refresh recomputes immediately, dropping any pending query timer.
func (v *SearchView) Refresh() []domain.Screenshot {
	v.debounce.Cancel()
	return v.recompute()
}

// Flush applies a pending query change now.
func (v *SearchView) Flush() {
	v.debounce.Flush()
}

func (v *SearchView) Query() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Results returns the last computed view.
func (v *SearchView) Results() []domain.Screenshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Screenshot{}, v.results...)
}

func (v *SearchView) recompute() []domain.Screenshot {
	v.mu.Lock()
	query := v.query
	base := v.override
	v.mu.Unlock()

	if base == nil {
		base = v.source.List()
	}
	results := Filter(base, query)

	v.mu.Lock()
	v.results = results
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(query, results)
	}
	return results
}
