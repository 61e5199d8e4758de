package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c))
	})

	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{name: "reused", incoming: "req-123", reused: true},
		{name: "missing", incoming: ""},
		{name: "too long", incoming: strings.Repeat("a", 129)},
		{name: "spaces", incoming: "req 1"},
		{name: "non ascii", incoming: "запрос"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-Id", tt.incoming)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			got := resp.Header().Get("X-Request-Id")
			if got == "" || got != resp.Body.String() {
				t.Fatalf("header %q and context %q must match", got, resp.Body.String())
			}
			if tt.reused && got != tt.incoming {
				t.Fatalf("expected %q reused, got %q", tt.incoming, got)
			}
			if !tt.reused && got == tt.incoming {
				t.Fatalf("expected a fresh id, got %q", got)
			}
		})
	}
}
