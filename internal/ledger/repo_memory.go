package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[int64]Entry
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[int64]Entry)}
}

func (r *MemoryRepo) RecordUpload(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[e.AnalysisID] = e
	return nil
}

func (r *MemoryRepo) MarkReportFetched(ctx context.Context, analysisID int64, reportSHA256 string, at time.Time) error {
	return r.update(ctx, analysisID, func(e *Entry) {
		e.ReportFetchedAt = &at
		e.ReportSHA256 = reportSHA256
	})
}

func (r *MemoryRepo) MarkSaved(ctx context.Context, analysisID int64, storageKey string, at time.Time) error {
	return r.update(ctx, analysisID, func(e *Entry) {
		e.StorageKey = storageKey
		e.SavedAt = &at
	})
}

func (r *MemoryRepo) Get(ctx context.Context, analysisID int64) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.data[analysisID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, owner string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Entry, 0, len(r.data))
	for _, e := range r.data {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].AnalysisID > out[j].AnalysisID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) update(ctx context.Context, analysisID int64, fn func(*Entry)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[analysisID]
	if !ok {
		return ErrNotFound
	}
	fn(&e)
	r.data[analysisID] = e
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
