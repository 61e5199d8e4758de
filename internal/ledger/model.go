package ledger

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no entry exists for an analysis id.
var ErrNotFound = errors.New("ledger entry not found")

// Entry is the local record of one uploaded document and what was fetched for it.
type Entry struct {
	AnalysisID      int64
	Owner           string
	FileName        string
	ContentType     string
	DocumentSHA256  string
	SizeBytes       int64
	UploadedAt      time.Time
	ReportFetchedAt *time.Time
	ReportSHA256    string
	StorageKey      string
	SavedAt         *time.Time
}
