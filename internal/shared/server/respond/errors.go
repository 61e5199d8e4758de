package respond

import (
	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/telemetry"
)

// DetailResponse is the error body shape of the analysis backend: {"detail": "..."}.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// Error logs and aborts with {"detail": message}.
func Error(c *gin.Context, status int, message string) {
	fields := map[string]any{
		"status":     status,
		"detail":     message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if user := c.GetString("userEmail"); user != "" {
		fields["user"] = user
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}
	c.AbortWithStatusJSON(status, DetailResponse{Detail: message})
}
