// Package ledger keeps a local history of uploads made through the client,
// in memory or in Postgres.
package ledger

import (
	"context"
	"time"
)

// Repo persists ledger entries.
type Repo interface {
	// RecordUpload inserts e, replacing any earlier entry with the same id.
	RecordUpload(ctx context.Context, e Entry) error
	MarkReportFetched(ctx context.Context, analysisID int64, reportSHA256 string, at time.Time) error
	MarkSaved(ctx context.Context, analysisID int64, storageKey string, at time.Time) error
	Get(ctx context.Context, analysisID int64) (Entry, error)
	// ListByOwner returns entries newest first. limit <= 0 means no limit.
	ListByOwner(ctx context.Context, owner string, limit int) ([]Entry, error)
}
