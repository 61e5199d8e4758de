package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ":8000"},
		{in: "9000", want: ":9000"},
		{in: ":7000", want: ":7000"},
	}
	for _, tt := range tests {
		if got := Addr(tt.in); got != tt.want {
			t.Fatalf("Addr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewEngineRecoversPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewEngine(nil)
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if resp.Body.String() != `{"detail":"Internal Server Error"}` {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestNewEngineUnknownRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewEngine(nil)
	r.GET("/report/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		method string
		path   string
		code   int
		body   string
	}{
		{method: http.MethodGet, path: "/nope", code: http.StatusNotFound, body: `{"detail":"Not Found"}`},
		{method: http.MethodPost, path: "/report/1", code: http.StatusMethodNotAllowed, body: `{"detail":"Method Not Allowed"}`},
	}
	for _, tt := range tests {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tt.method, tt.path, nil))
		if resp.Code != tt.code || resp.Body.String() != tt.body {
			t.Fatalf("%s %s: got %d %s", tt.method, tt.path, resp.Code, resp.Body.String())
		}
	}
}
