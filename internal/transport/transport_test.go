package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendJSONBody(t *testing.T) {
	var gotCT, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Send(context.Background(), Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   "/auth/login",
		Header: http.Header{"Authorization": {"Bearer t"}},
		Body:   JSONBody{Value: map[string]string{"email": "a@x.com", "password": "pw"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != http.StatusCreated || !resp.OK() {
		t.Fatalf("expected 201, got %d", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` || resp.Header.Get("X-Test") != "yes" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotCT != "application/json" {
		t.Fatalf("expected application/json, got %q", gotCT)
	}
	if gotAuth != "Bearer t" {
		t.Fatalf("expected auth header passed through, got %q", gotAuth)
	}
	if gotBody["email"] != "a@x.com" || gotBody["password"] != "pw" {
		t.Fatalf("unexpected json body %v", gotBody)
	}
}

func TestSendMultipartBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantType    string
	}{
		{name: "declared type", contentType: "application/pdf", wantType: "application/pdf"},
		{name: "unknown type", contentType: "", wantType: DefaultContentType},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				file, header, err := r.FormFile("file")
				if err != nil {
					t.Errorf("form file: %v", err)
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				defer file.Close()
				data, _ := io.ReadAll(file)
				if header.Filename != "doc.pdf" {
					t.Errorf("expected filename doc.pdf, got %q", header.Filename)
				}
				if got := header.Header.Get("Content-Type"); got != tt.wantType {
					t.Errorf("expected part type %q, got %q", tt.wantType, got)
				}
				if string(data) != "%PDF-1.4" {
					t.Errorf("unexpected part data %q", data)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c, err := New(srv.URL, Options{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			resp, err := c.Send(context.Background(), Request{
				Op:     "upload",
				Method: http.MethodPost,
				Path:   "upload/document",
				Body:   MultipartBody{Field: "file", FileName: "doc.pdf", ContentType: tt.contentType, Data: []byte("%PDF-1.4")},
			})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if resp.Status != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.Status)
			}
		})
	}
}

func TestSendNon2xxIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "missing")
	}))
	defer srv.Close()

	c, _ := New(srv.URL, Options{})
	resp, err := c.Send(context.Background(), Request{Op: "report", Path: "/report/1"})
	if err != nil {
		t.Fatalf("expected no error for 404, got %v", err)
	}
	if resp.OK() || resp.Status != http.StatusNotFound || string(resp.Body) != "missing" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url, Options{})
	_, err := c.Send(context.Background(), Request{Op: "ping", Path: "/"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
	if terr.Err == nil || terr.Method != http.MethodGet {
		t.Fatalf("unexpected transport error %+v", terr)
	}
}

func TestSendCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := New(srv.URL, Options{})
	_, err := c.Send(ctx, Request{Op: "ping", Path: "/"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "localhost:8000"} {
		if _, err := New(raw, Options{}); err == nil {
			t.Fatalf("expected error for base URL %q", raw)
		}
	}
}
