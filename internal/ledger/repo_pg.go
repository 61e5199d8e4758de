package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `analysis_id, owner, file_name, content_type, document_sha256, size_bytes, uploaded_at, report_fetched_at, report_sha256, storage_key, saved_at`

func (r *PGRepo) RecordUpload(ctx context.Context, e Entry) error {
	const query = `
INSERT INTO analyses (
    analysis_id,
    owner,
    file_name,
    content_type,
    document_sha256,
    size_bytes,
    uploaded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (analysis_id) DO UPDATE SET
    owner = EXCLUDED.owner,
    file_name = EXCLUDED.file_name,
    content_type = EXCLUDED.content_type,
    document_sha256 = EXCLUDED.document_sha256,
    size_bytes = EXCLUDED.size_bytes,
    uploaded_at = EXCLUDED.uploaded_at,
    report_fetched_at = NULL,
    report_sha256 = NULL,
    storage_key = NULL,
    saved_at = NULL`

	uploadedAt := e.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query,
		e.AnalysisID,
		e.Owner,
		e.FileName,
		e.ContentType,
		e.DocumentSHA256,
		e.SizeBytes,
		uploadedAt,
	)
	return err
}

func (r *PGRepo) MarkReportFetched(ctx context.Context, analysisID int64, reportSHA256 string, at time.Time) error {
	const query = `
UPDATE analyses
SET report_fetched_at = $2, report_sha256 = $3
WHERE analysis_id = $1`
	return r.execOne(ctx, query, analysisID, at, nullableString(reportSHA256))
}

func (r *PGRepo) MarkSaved(ctx context.Context, analysisID int64, storageKey string, at time.Time) error {
	const query = `
UPDATE analyses
SET storage_key = $2, saved_at = $3
WHERE analysis_id = $1`
	return r.execOne(ctx, query, analysisID, nullableString(storageKey), at)
}

func (r *PGRepo) Get(ctx context.Context, analysisID int64) (Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM analyses WHERE analysis_id = $1`
	e, err := scanEntry(r.DB.QueryRowContext(ctx, query, analysisID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *PGRepo) ListByOwner(ctx context.Context, owner string, limit int) ([]Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM analyses WHERE owner = $1 ORDER BY uploaded_at DESC, analysis_id DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e          Entry
		fetchedAt  sql.NullTime
		reportSHA  sql.NullString
		storageKey sql.NullString
		savedAt    sql.NullTime
	)
	err := row.Scan(
		&e.AnalysisID,
		&e.Owner,
		&e.FileName,
		&e.ContentType,
		&e.DocumentSHA256,
		&e.SizeBytes,
		&e.UploadedAt,
		&fetchedAt,
		&reportSHA,
		&storageKey,
		&savedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if fetchedAt.Valid {
		e.ReportFetchedAt = &fetchedAt.Time
	}
	if reportSHA.Valid {
		e.ReportSHA256 = reportSHA.String
	}
	if storageKey.Valid {
		e.StorageKey = storageKey.String
	}
	if savedAt.Valid {
		e.SavedAt = &savedAt.Time
	}
	return e, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
