package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Store saves and retrieves binary objects by key.
type Store interface {
	Save(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Sharer is implemented by stores that can hand out time-limited download links.
type Sharer interface {
	ShareURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ReportKey returns the key a saved report is stored under:
// reports/<owner>/<analysis id>/report.<ext>.
func ReportKey(owner string, analysisID int64, ext string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = "anonymous"
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join("reports", owner, strconv.FormatInt(analysisID, 10), "report."+ext)
}

// CleanKey normalizes key to a relative slash path and rejects traversal.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	slashed := strings.ReplaceAll(trimmed, "\\", "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if clean == "" {
		return "", ErrInvalidKey
	}
	return clean, nil
}

// ApplyPrefix joins a bucket prefix and key with exactly one slash.
func ApplyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
