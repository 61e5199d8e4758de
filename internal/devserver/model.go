// Package devserver is an in-memory implementation of the analysis backend's
// HTTP contract, used for local development and end-to-end tests.
package devserver

import (
	"errors"
	"time"

	"execal-client/internal/labreport"
)

var (
	ErrUserExists           = errors.New("user exists")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrAnalysisNotFound     = errors.New("analysis not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// Analysis statuses.
const (
	StatusReceived  = "received"
	StatusProcessed = "processed"
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	Age          *int
	Gender       *string
	Language     string
	CreatedAt    time.Time
}

// Analysis is one uploaded document and what was extracted from it.
type Analysis struct {
	ID          int64
	UserID      int64
	Date        time.Time
	Status      string
	Source      string
	Format      string
	DocumentRef string
	OCRText     string
	Indicators  []labreport.Indicator
}
