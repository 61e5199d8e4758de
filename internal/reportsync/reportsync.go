// Package reportsync consumes report events from the queue and copies the
// rendered PDF of each ready analysis into object storage.
package reportsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"execal-client/internal/execal"
	"execal-client/internal/ledger"
	"execal-client/internal/queue"
	"execal-client/internal/shared/storage/object"
	"execal-client/internal/shared/telemetry"
	"execal-client/internal/shared/util"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.HashBytes([]byte(body))}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingAnalysisID indicates a message without a positive analysis id.
type ErrMissingAnalysisID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingAnalysisID) Error() string { return "missing analysis id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	AnalysisID int64
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "sync report"
	}
	return "sync report: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether err can never succeed on redelivery.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingAnalysisID
	)
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.AnalysisID <= 0 {
		return msg, meta, ErrMissingAnalysisID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Processor handles one decoded event.
type Processor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, p Processor, body string) error {
	if p == nil {
		return errors.New("report sync not configured")
	}
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	if err := p.Process(ctx, msg); err != nil {
		return ErrProcess{AnalysisID: msg.AnalysisID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// PDFFetcher downloads a rendered report. *execal.Client implements it.
type PDFFetcher interface {
	GetReportPDF(ctx context.Context, token string, id int64) (execal.ReportPDF, error)
}

// Syncer saves the PDF of every report.ready event it sees. Other events
// are acknowledged without work.
type Syncer struct {
	Client PDFFetcher
	Token  string
	Store  object.Store
	// Ledger is optional. Saves of analyses it does not know are still kept.
	Ledger ledger.Repo
	Now    func() time.Time
}

// Process implements Processor.
func (s *Syncer) Process(ctx context.Context, msg queue.Message) error {
	if msg.Event != queue.EventReportReady {
		telemetry.Debug("reportsync.skipped", map[string]any{
			"analysis_id": msg.AnalysisID,
			"event":       msg.Event,
			"request_id":  msg.RequestID,
		})
		return nil
	}
	if s.Client == nil || s.Store == nil {
		return errors.New("report sync not configured")
	}

	pdf, err := s.Client.GetReportPDF(ctx, s.Token, msg.AnalysisID)
	if err != nil {
		return fmt.Errorf("fetch pdf: %w", err)
	}
	key := object.ReportKey(msg.Owner, msg.AnalysisID, "pdf")
	size, err := s.Store.Save(ctx, key, "application/pdf", bytes.NewReader(pdf.Bytes))
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	if s.Ledger != nil {
		err := s.Ledger.MarkSaved(ctx, msg.AnalysisID, key, s.now())
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			telemetry.Warn("reportsync.ledger_unknown_analysis", map[string]any{"analysis_id": msg.AnalysisID})
		case err != nil:
			return fmt.Errorf("ledger: %w", err)
		}
	}

	telemetry.Info("reportsync.saved", map[string]any{
		"analysis_id": msg.AnalysisID,
		"request_id":  msg.RequestID,
		"key":         key,
		"bytes":       size,
	})
	return nil
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ Processor = (*Syncer)(nil)
