package collection

import (
	"fmt"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
)

// Intent is a user request produced by a front end and applied by Store.Dispatch.
type Intent interface {
	intent()
}

type AddRequested struct {
	Record domain.Screenshot
}

type RemoveRequested struct {
	ID string
}

type DescriptionEdited struct {
	ID   string
	Text string
}

type ClearRequested struct{}

type ReplaceRequested struct {
	Records []domain.Screenshot
}

type ImportRequested struct {
	Entries []domain.ExportEntry
}

func (AddRequested) intent()      {}
func (RemoveRequested) intent()   {}
func (DescriptionEdited) intent() {}
func (ClearRequested) intent()    {}
func (ReplaceRequested) intent()  {}
func (ImportRequested) intent()   {}

// Outcome summarizes what an intent changed.
type Outcome struct {
	Changed bool
	Added   int
	Record  *domain.Screenshot
}

// Dispatch applies intent to the store.
func (s *Store) Dispatch(intent Intent) (Outcome, error) {
	switch in := intent.(type) {
	case AddRequested:
		record, err := s.Add(in.Record)
		return Outcome{Changed: true, Added: 1, Record: &record}, err
	case RemoveRequested:
		removed, err := s.Remove(in.ID)
		return Outcome{Changed: removed}, err
	case DescriptionEdited:
		if !s.UpdateDescription(in.ID, in.Text) {
			return Outcome{}, fmt.Errorf("screenshot %s: %w", in.ID, domain.ErrNotFound)
		}
		return Outcome{Changed: true}, nil
	case ClearRequested:
		return Outcome{Changed: true}, s.Clear()
	case ReplaceRequested:
		return Outcome{Changed: true}, s.ReplaceAll(in.Records)
	case ImportRequested:
		added, err := s.ImportMerge(in.Entries)
		return Outcome{Changed: added > 0, Added: added}, err
	default:
		return Outcome{}, fmt.Errorf("unsupported intent %T", intent)
	}
}
