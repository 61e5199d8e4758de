package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/server/respond"
	"execal-client/internal/shared/telemetry"
)

// Recovery turns a handler panic into a logged 500 {"detail": "Internal Server Error"}.
// The panic value and stack are logged; neither reaches the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"method":     c.Request.Method,
				"route":      c.FullPath(),
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			}
			if user := UserEmailFromContext(c); user != "" {
				fields["user"] = user
			}
			if id, ok := c.Get(AnalysisIDKey); ok {
				fields["analysis_id"] = id
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
		}()
		c.Next()
	}
}
