package execal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"execal-client/internal/decode"
	"execal-client/internal/transport"
)

// fakeBackend scripts responses per "METHOD path" and records what it saw.
type fakeBackend struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	seen      []seenRequest
}

type fakeResponse struct {
	status int
	body   string
}

type seenRequest struct {
	method   string
	path     string
	auth     string
	body     []byte
	fileName string
	fileType string
	fileData []byte
}

func newFakeBackend(t *testing.T, responses map[string]fakeResponse) (*fakeBackend, *Client) {
	t.Helper()
	fb := &fakeBackend{responses: responses}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	c, err := NewHTTP(srv.URL, transport.Options{})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return fb, c
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seen := seenRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if file, header, err := r.FormFile("file"); err == nil {
			seen.fileName = header.Filename
			seen.fileType = header.Header.Get("Content-Type")
			seen.fileData, _ = io.ReadAll(file)
			file.Close()
		}
	} else {
		seen.body, _ = io.ReadAll(r.Body)
	}

	f.mu.Lock()
	f.seen = append(f.seen, seen)
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not Found"}`)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeBackend) requests() []seenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]seenRequest(nil), f.seen...)
}

func TestScenarioRegisterLoginUploadReport(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /auth/register":   {status: http.StatusOK, body: `{"id":1,"email":"a@x.com"}`},
		"POST /auth/login":      {status: http.StatusOK, body: `{"access_token":"tkn1","token_type":"bearer"}`},
		"POST /upload/document": {status: http.StatusOK, body: `{"analysis_id": 42}`},
		"GET /report/42":        {status: http.StatusOK, body: `{"analysisId":42,"score":0.9}`},
	})
	ctx := context.Background()

	if err := c.Register(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := c.Login(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tkn1" {
		t.Fatalf("expected token tkn1, got %q", token)
	}
	pdfBytes := []byte("%PDF-1.4...")
	id, err := c.Upload(ctx, token, "doc.pdf", "application/pdf", pdfBytes)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	report, err := c.GetReport(ctx, token, id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	want := "{\n  \"analysisId\": 42,\n  \"score\": 0.9\n}"
	if report.Body != want || report.AnalysisID != 42 {
		t.Fatalf("unexpected report %+v", report)
	}

	reqs := fb.requests()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(reqs))
	}
	var creds Credentials
	if err := json.Unmarshal(reqs[0].body, &creds); err != nil || creds.Email != "a@x.com" || creds.Password != "pw" {
		t.Fatalf("unexpected register body %s", reqs[0].body)
	}
	if reqs[0].auth != "" || reqs[1].auth != "" {
		t.Fatalf("register/login must not carry auth")
	}
	upload := reqs[2]
	if upload.auth != "Bearer tkn1" || upload.fileName != "doc.pdf" || upload.fileType != "application/pdf" || string(upload.fileData) != string(pdfBytes) {
		t.Fatalf("unexpected upload request %+v", upload)
	}
	if reqs[3].auth != "Bearer tkn1" {
		t.Fatalf("expected auth on report fetch, got %q", reqs[3].auth)
	}
}

func TestUploadAlternateKey(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /upload/document": {status: http.StatusOK, body: `{"analysisId": 7}`},
	})
	id, err := c.Upload(context.Background(), "tkn1", "scan.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
}

func TestUploadMissingIDIsMalformed(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /upload/document": {status: http.StatusOK, body: `{"status":"ok"}`},
	})
	id, err := c.Upload(context.Background(), "tkn1", "doc.pdf", "", []byte("x"))
	if id != 0 {
		t.Fatalf("expected no id, got %d", id)
	}
	var malformed *decode.MalformedResponse
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponse, got %v", err)
	}
	if malformed.Raw != `{"status":"ok"}` {
		t.Fatalf("expected raw body, got %q", malformed.Raw)
	}
	if Kind(err) != KindMalformed {
		t.Fatalf("expected malformed kind, got %s", Kind(err))
	}
}

func TestUploadWithoutTokenStillSends(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /upload/document": {status: http.StatusUnauthorized, body: `{"detail":"Not authenticated"}`},
	})
	_, err := c.Upload(context.Background(), "", "doc.pdf", "", []byte("x"))
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	reqs := fb.requests()
	if len(reqs) != 1 || reqs[0].auth != "" {
		t.Fatalf("expected one request without auth, got %+v", reqs)
	}
	if reqs[0].fileType != transport.DefaultContentType {
		t.Fatalf("expected default content type, got %q", reqs[0].fileType)
	}
}

func TestRegisterDuplicateIsAPIError(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /auth/register": {status: http.StatusBadRequest, body: `{"detail":"User exists"}`},
	})
	err := c.Register(context.Background(), "a@x.com", "pw")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || string(apiErr.Body) != `{"detail":"User exists"}` {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
	if Kind(err) != KindAPI {
		t.Fatalf("expected api kind")
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		resp     fakeResponse
		wantKind string
	}{
		{name: "bad credentials", resp: fakeResponse{status: http.StatusBadRequest, body: `{"detail":"Incorrect credentials"}`}, wantKind: KindAPI},
		{name: "missing token", resp: fakeResponse{status: http.StatusOK, body: `{"token_type":"bearer"}`}, wantKind: KindMalformed},
		{name: "not json", resp: fakeResponse{status: http.StatusOK, body: `ok`}, wantKind: KindMalformed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeBackend(t, map[string]fakeResponse{"POST /auth/login": tt.resp})
			token, err := c.Login(context.Background(), "a@x.com", "pw")
			if token != "" {
				t.Fatalf("expected no partial token, got %q", token)
			}
			if Kind(err) != tt.wantKind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.wantKind, Kind(err), err)
			}
		})
	}
}

func TestGetReportPlainTextAndRefetch(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /report/5": {status: http.StatusOK, body: "analysis pending"},
	})
	ctx := context.Background()
	first, err := c.GetReport(ctx, "", 5)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	second, err := c.GetReport(ctx, "", 5)
	if err != nil {
		t.Fatalf("GetReport again: %v", err)
	}
	if first.Body != "analysis pending" || first != second {
		t.Fatalf("expected identical plain-text reports, got %+v and %+v", first, second)
	}
	for _, r := range fb.requests() {
		if r.method != http.MethodGet || r.path != "/report/5" || r.auth != "" {
			t.Fatalf("unexpected request %+v", r)
		}
	}
}

func TestGetReportPDF(t *testing.T) {
	pdf := "%PDF-1.4\n\x00\x01binary\n%%EOF"
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /report/9/pdf": {status: http.StatusOK, body: pdf},
	})
	got, err := c.GetReportPDF(context.Background(), "tkn", 9)
	if err != nil {
		t.Fatalf("GetReportPDF: %v", err)
	}
	if string(got.Bytes) != pdf || got.AnalysisID != 9 {
		t.Fatalf("expected raw bytes unchanged, got %q", got.Bytes)
	}

	_, err = c.GetReportPDF(context.Background(), "tkn", 10)
	if apiErr, ok := AsAPIError(err); !ok || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func TestTransportErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTP(url, transport.Options{})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	_, err = c.GetReport(context.Background(), "", 1)
	if Kind(err) != KindTransport {
		t.Fatalf("expected transport kind, got %s (%v)", Kind(err), err)
	}
	var terr *transport.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError")
	}
}

func TestReadHelpers(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /":                      {status: http.StatusOK, body: `{"status":"ok","message":"Medical Lab MVP Backend"}`},
		"GET /upload/history":        {status: http.StatusOK, body: `[{"id":3,"date":"2026-01-02T10:00:00","status":"processed","source":"web","format":"application/pdf"}]`},
		"GET /tests/list":            {status: http.StatusOK, body: `[{"name":"Glucose","ref_min":3.9,"ref_max":5.5,"units":"mmol/L"}]`},
		"POST /consultation/request": {status: http.StatusOK, body: `{"status":"requested","details":"consultation scheduled (MVP stub)","user_id":1}`},
	})
	ctx := context.Background()

	status, err := c.Ping(ctx)
	if err != nil || !strings.Contains(status, `"status": "ok"`) {
		t.Fatalf("Ping = %q, %v", status, err)
	}
	history, err := c.History(ctx, "tkn")
	if err != nil || len(history) != 1 || history[0].ID != 3 || history[0].Status != "processed" {
		t.Fatalf("History = %+v, %v", history, err)
	}
	refs, err := c.ReferenceTests(ctx)
	if err != nil || len(refs) != 1 || refs[0].Name != "Glucose" || refs[0].RefMax == nil || *refs[0].RefMax != 5.5 {
		t.Fatalf("ReferenceTests = %+v, %v", refs, err)
	}
	consult, err := c.RequestConsultation(ctx, "tkn")
	if err != nil || consult.Status != "requested" || consult.UserID != 1 {
		t.Fatalf("RequestConsultation = %+v, %v", consult, err)
	}
}

func TestHistoryMalformed(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /upload/history": {status: http.StatusOK, body: `{"not":"a list"}`},
	})
	_, err := c.History(context.Background(), "tkn")
	if Kind(err) != KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
}
