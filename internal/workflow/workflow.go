// Package workflow drives one document through upload, report fetch and
// optional PDF fetch and save. Each step is retryable on its own: once an
// analysis id is known, later failures never require a new upload.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"execal-client/internal/execal"
	"execal-client/internal/ledger"
	"execal-client/internal/queue"
	"execal-client/internal/shared/metrics"
	"execal-client/internal/shared/storage/object"
	"execal-client/internal/shared/telemetry"
	"execal-client/internal/shared/util"
)

var (
	// ErrBusy is returned when an operation is started while another is in flight.
	ErrBusy = errors.New("workflow: operation already in progress")
	// ErrNoAnalysis is returned by steps that need an analysis id before one exists.
	ErrNoAnalysis = errors.New("workflow: no analysis id")
	// ErrNothingToSave is returned by Save before any report or PDF was fetched.
	ErrNothingToSave = errors.New("workflow: no report or pdf to save")
)

// API is the part of the backend client the workflow drives.
type API interface {
	Upload(ctx context.Context, token, fileName, contentType string, data []byte) (int64, error)
	GetReport(ctx context.Context, token string, id int64) (execal.Report, error)
	GetReportPDF(ctx context.Context, token string, id int64) (execal.ReportPDF, error)
}

var _ API = (*execal.Client)(nil)

// Document is the file handed to Start.
type Document struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Snapshot is a point-in-time copy of the workflow.
type Snapshot struct {
	State State
	// Previous is the state an Errored workflow failed in.
	Previous   State
	AnalysisID int64
	Report     *execal.Report
	PDF        *execal.ReportPDF
	Err        error
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithObserver registers fn to be called after every transition.
func WithObserver(fn func(Transition)) Option {
	return func(w *Workflow) { w.observers = append(w.observers, fn) }
}

// WithNotifier publishes queue events when a report becomes ready or is saved.
func WithNotifier(c queue.Client) Option {
	return func(w *Workflow) { w.notifier = c }
}

// WithLedger records uploads, report fetches and saves.
func WithLedger(r ledger.Repo) Option {
	return func(w *Workflow) { w.ledger = r }
}

// WithOwner sets the namespace used for ledger entries and storage keys.
func WithOwner(owner string) Option {
	return func(w *Workflow) { w.owner = owner }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Workflow is a single-document state machine. Operations are synchronous
// and serialized; Snapshot may be called at any time from any goroutine.
type Workflow struct {
	api       API
	observers []func(Transition)
	notifier  queue.Client
	ledger    ledger.Repo
	owner     string
	now       func() time.Time

	mu         sync.Mutex
	busy       bool
	state      State
	previous   State
	analysisID int64
	report     *execal.Report
	pdf        *execal.ReportPDF
	err        error
	notified   bool
}

// New constructs a Workflow in the Idle state.
func New(api API, opts ...Option) *Workflow {
	w := &Workflow{api: api, now: time.Now, state: Idle}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		State:      w.state,
		Previous:   w.previous,
		AnalysisID: w.analysisID,
		Report:     w.report,
		PDF:        w.pdf,
		Err:        w.err,
	}
}

// State returns the current state.
func (w *Workflow) State() State {
	return w.Snapshot().State
}

// Start uploads doc and then fetches its report. Any earlier analysis held
// by the workflow is discarded. The returned id is non-zero whenever the
// upload itself succeeded, even if the report fetch then failed.
func (w *Workflow) Start(ctx context.Context, token string, doc Document) (int64, error) {
	if err := w.begin(); err != nil {
		return 0, err
	}
	defer w.end()

	w.mu.Lock()
	w.analysisID = 0
	w.report = nil
	w.pdf = nil
	w.notified = false
	w.mu.Unlock()

	w.transition(Uploading, nil)
	id, err := w.api.Upload(ctx, token, doc.FileName, doc.ContentType, doc.Data)
	if err != nil {
		uerr := fmt.Errorf("upload: %w", err)
		w.fail(Uploading, uerr)
		// Nothing is held after a failed upload, so settle back to Idle.
		// The error stays visible in Snapshot.
		w.transition(Idle, uerr)
		return 0, err
	}

	w.mu.Lock()
	w.analysisID = id
	w.mu.Unlock()
	w.transition(Uploaded, nil)
	w.recordUpload(ctx, id, doc)

	if err := w.fetchReport(ctx, token, id); err != nil {
		return id, err
	}
	return id, nil
}

// RefreshReport fetches the report again for the known analysis id.
func (w *Workflow) RefreshReport(ctx context.Context, token string) error {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.end()

	id, err := w.requireID()
	if err != nil {
		return err
	}
	return w.fetchReport(ctx, token, id)
}

// FetchPDF downloads the rendered report. A failure leaves the previously
// fetched report in place.
func (w *Workflow) FetchPDF(ctx context.Context, token string) error {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.end()

	id, err := w.requireID()
	if err != nil {
		return err
	}

	w.transition(PDFFetching, nil)
	pdf, err := w.api.GetReportPDF(ctx, token, id)
	if err != nil {
		w.fail(PDFFetching, fmt.Errorf("fetch pdf: %w", err))
		return err
	}
	w.mu.Lock()
	w.pdf = &pdf
	w.mu.Unlock()
	w.transition(PDFReady, nil)
	return nil
}

// Save writes the PDF, or the report text when no PDF was fetched, to store
// and returns the key it was written under. The state is unchanged on success.
func (w *Workflow) Save(ctx context.Context, store object.Store) (string, error) {
	if err := w.begin(); err != nil {
		return "", err
	}
	defer w.end()

	w.mu.Lock()
	id, report, pdf, state, step := w.analysisID, w.report, w.pdf, w.state, w.settledState()
	w.mu.Unlock()
	if id == 0 {
		return "", ErrNoAnalysis
	}

	var (
		data  []byte
		ext   string
		ctype string
	)
	switch {
	case pdf != nil:
		data, ext, ctype = pdf.Bytes, "pdf", "application/pdf"
	case report != nil:
		data = []byte(report.Body)
		ext, ctype = "txt", "text/plain; charset=utf-8"
		if json.Valid(data) {
			ext, ctype = "json", "application/json"
		}
	default:
		return "", ErrNothingToSave
	}

	key := object.ReportKey(w.owner, id, ext)
	size, err := store.Save(ctx, key, ctype, bytes.NewReader(data))
	if err != nil {
		w.fail(step, fmt.Errorf("save %s: %w", key, err))
		return "", err
	}
	telemetry.Info("workflow.saved", map[string]any{
		"analysis_id": id,
		"key":         key,
		"bytes":       size,
	})

	if w.ledger != nil {
		if err := w.ledger.MarkSaved(ctx, id, key, w.now().UTC()); err != nil {
			telemetry.Warn("workflow.ledger_failed", map[string]any{"analysis_id": id, "op": "mark_saved", "error": err})
		}
	}
	w.publish(ctx, queue.EventReportSaved, id, key)

	// A prior Errored state is cleared by a successful save.
	if state == Errored {
		w.mu.Lock()
		restore := w.settledState()
		w.mu.Unlock()
		w.transition(restore, nil)
	}
	return key, nil
}

// Reset discards everything and returns to Idle.
func (w *Workflow) Reset() error {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	w.analysisID = 0
	w.report = nil
	w.pdf = nil
	w.notified = false
	w.mu.Unlock()
	w.transition(Idle, nil)
	return nil
}

func (w *Workflow) fetchReport(ctx context.Context, token string, id int64) error {
	w.transition(ReportFetching, nil)
	report, err := w.api.GetReport(ctx, token, id)
	if err != nil {
		w.fail(ReportFetching, fmt.Errorf("fetch report: %w", err))
		return err
	}

	w.mu.Lock()
	w.report = &report
	first := !w.notified
	w.notified = true
	w.mu.Unlock()
	w.transition(ReportReady, nil)

	if w.ledger != nil {
		sum := util.HashBytes([]byte(report.Body))
		if err := w.ledger.MarkReportFetched(ctx, id, sum, w.now().UTC()); err != nil {
			telemetry.Warn("workflow.ledger_failed", map[string]any{"analysis_id": id, "op": "mark_report_fetched", "error": err})
		}
	}
	if first {
		w.publish(ctx, queue.EventReportReady, id, "")
	}
	return nil
}

func (w *Workflow) recordUpload(ctx context.Context, id int64, doc Document) {
	if w.ledger == nil {
		return
	}
	err := w.ledger.RecordUpload(ctx, ledger.Entry{
		AnalysisID:     id,
		Owner:          w.owner,
		FileName:       doc.FileName,
		ContentType:    doc.ContentType,
		DocumentSHA256: util.HashBytes(doc.Data),
		SizeBytes:      int64(len(doc.Data)),
		UploadedAt:     w.now().UTC(),
	})
	if err != nil {
		telemetry.Warn("workflow.ledger_failed", map[string]any{"analysis_id": id, "op": "record_upload", "error": err})
	}
}

func (w *Workflow) publish(ctx context.Context, event string, id int64, key string) {
	if w.notifier == nil {
		return
	}
	msg := queue.Message{
		Event:      event,
		AnalysisID: id,
		Owner:      w.owner,
		StorageKey: key,
		RequestID:  uuid.NewString(),
		EnqueuedAt: w.now().UTC().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if err := w.notifier.Send(ctx, msg); err != nil {
		telemetry.Warn("workflow.notify_failed", map[string]any{"analysis_id": id, "event": event, "error": err})
	}
}

func (w *Workflow) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	return nil
}

func (w *Workflow) end() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

func (w *Workflow) requireID() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.analysisID == 0 {
		return 0, ErrNoAnalysis
	}
	return w.analysisID, nil
}

// settledState is the state implied by what has been fetched. Callers hold mu.
func (w *Workflow) settledState() State {
	switch {
	case w.pdf != nil:
		return PDFReady
	case w.report != nil:
		return ReportReady
	case w.analysisID != 0:
		return Uploaded
	default:
		return Idle
	}
}

func (w *Workflow) fail(in State, err error) {
	w.mu.Lock()
	w.previous = in
	w.mu.Unlock()
	w.transition(Errored, err)
}

func (w *Workflow) transition(to State, err error) {
	w.mu.Lock()
	from := w.state
	w.state = to
	w.err = err
	id := w.analysisID
	observers := w.observers
	w.mu.Unlock()

	metrics.IncTransition(to.String())
	fields := map[string]any{
		"from":        from.String(),
		"to":          to.String(),
		"analysis_id": id,
	}
	if err != nil {
		fields["error"] = err
		fields["kind"] = execal.Kind(err)
		telemetry.Warn("workflow.transition", fields)
	} else {
		telemetry.Debug("workflow.transition", fields)
	}

	t := Transition{From: from, To: to, AnalysisID: id, Err: err, At: w.now()}
	for _, fn := range observers {
		fn(t)
	}
}

// Describe renders a snapshot as a single status line.
func Describe(s Snapshot) string {
	var b strings.Builder
	b.WriteString(s.State.String())
	if s.AnalysisID != 0 {
		fmt.Fprintf(&b, " analysis_id=%d", s.AnalysisID)
	}
	if s.State == Errored || s.Err != nil {
		fmt.Fprintf(&b, " during=%s", s.Previous)
		if s.Err != nil {
			fmt.Fprintf(&b, " kind=%s error=%q", execal.Kind(s.Err), s.Err.Error())
		}
	}
	return b.String()
}
