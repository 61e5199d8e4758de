package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/auth"
	"execal-client/internal/shared/server/respond"
)

const userEmailKey = "userEmail"

// Verifier checks a bearer token.
type Verifier interface {
	Verify(token string) (auth.Claims, error)
}

// Bearer requires a valid "Authorization: Bearer <token>" header and stores
// the token subject in the context. Failures answer 401 with the backend's
// detail messages.
func Bearer(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, ok := strings.Cut(header, " ")
		if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			respond.Error(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "Invalid token")
			return
		}
		c.Set(userEmailKey, claims.Sub)
		c.Next()
	}
}

// UserEmailFromContext returns the subject stored by Bearer.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userEmailKey)
}
