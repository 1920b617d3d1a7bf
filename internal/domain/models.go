package domain

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Screenshot is one stored image plus its note.
type Screenshot struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// UnmarshalJSON accepts numeric ids written by older versions of the app.
// An empty date is left zero.
func (s *Screenshot) UnmarshalJSON(data []byte) error {
	type plain Screenshot
	var raw struct {
		plain
		ID   json.RawMessage `json:"id"`
		Date string          `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Screenshot(raw.plain)
	s.ID = decodeID(raw.ID)
	if d := strings.TrimSpace(raw.Date); d != "" {
		date, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return err
		}
		s.Date = date
	}
	return nil
}

func decodeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

// Entry converts the record to its export shape.
func (s Screenshot) Entry() ExportEntry {
	return ExportEntry{
		Filename:    s.Filename,
		Description: s.Description,
		Date:        s.Date,
		Path:        s.Path,
	}
}

// ExportEntry is the import/export file format. It never carries an id.
type ExportEntry struct {
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Path        string    `json:"path"`
}

// UnmarshalJSON tolerates a missing or empty date; callers default it.
func (e *ExportEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Filename    string `json:"filename"`
		Description string `json:"description"`
		Date        string `json:"date"`
		Path        string `json:"path"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Filename = raw.Filename
	e.Description = raw.Description
	e.Path = raw.Path
	e.Date = time.Time{}
	if d := strings.TrimSpace(raw.Date); d != "" {
		t, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return err
		}
		e.Date = t
	}
	return nil
}

// Valid reports whether the entry names an asset.
func (e ExportEntry) Valid() bool {
	return strings.TrimSpace(e.Filename) != "" && strings.TrimSpace(e.Path) != ""
}

// UploadedAsset describes a stored file before it becomes a record.
type UploadedAsset struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimetype"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Date         time.Time `json:"date"`
	Description  string    `json:"description"`
}

// Record turns the asset into a collection record.
func (a UploadedAsset) Record() Screenshot {
	return Screenshot{
		ID:          a.ID,
		Filename:    a.Filename,
		Path:        a.Path,
		Description: a.Description,
		Date:        a.Date,
	}
}

// FileCandidate is a raw file offered for ingestion.
type FileCandidate struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type IngestSummary struct {
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Assets     []UploadedAsset `json:"files"`
	Rejections []Rejection     `json:"rejected"`
}

// Info is the static capability descriptor served at /api/info.
type Info struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Description      string   `json:"description"`
	Features         []string `json:"features"`
	DataDir          string   `json:"dataDir"`
	AssetsDir        string   `json:"assetsDir"`
	SupportedFormats []string `json:"supportedFormats"`
	Count            int      `json:"count"`
	MirrorEnabled    bool     `json:"mirrorEnabled"`
}

// BlobFile is one JSON file visible through the data API.
type BlobFile struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Location string    `json:"location"`
	Size     string    `json:"size"`
	Modified time.Time `json:"modified"`
}

type Blob struct {
	Name string          `json:"filename"`
	Path string          `json:"path"`
	Size string          `json:"size"`
	Data json.RawMessage `json:"data"`
}

// BackupResult reports what a mirror backup uploaded.
type BackupResult struct {
	SnapshotKey    string `json:"snapshotKey"`
	LatestKey      string `json:"latestKey"`
	Records        int    `json:"records"`
	AssetsUploaded int    `json:"assetsUploaded"`
	AssetsFailed   int    `json:"assetsFailed"`
}
