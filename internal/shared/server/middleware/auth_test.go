package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/auth"
)

func newBearerRouter(t *testing.T) (*gin.Engine, *auth.Signer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	signer, err := auth.NewSigner("test-secret", "dev", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	router := gin.New()
	router.Use(Bearer(signer))
	router.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": UserEmailFromContext(c)})
	})
	router.OPTIONS("/me", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, signer
}

func TestBearerAllowsOptionsWithoutIdentity(t *testing.T) {
	router, _ := newBearerRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestBearer(t *testing.T) {
	router, signer := newBearerRouter(t)
	token, err := signer.Sign("a@x.com")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantDetail string
	}{
		{name: "valid", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, wantStatus: http.StatusOK},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized, wantDetail: "Not authenticated"},
		{name: "basic scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantDetail: "Not authenticated"},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantDetail: "Not authenticated"},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.Code)
			}
			var body map[string]string
			_ = json.Unmarshal(resp.Body.Bytes(), &body)
			if tt.wantDetail != "" && body["detail"] != tt.wantDetail {
				t.Fatalf("expected detail %q, got %v", tt.wantDetail, body)
			}
			if tt.wantStatus == http.StatusOK && body["email"] != "a@x.com" {
				t.Fatalf("expected subject in context, got %v", body)
			}
		})
	}
}
