package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/metrics"
	"execal-client/internal/shared/telemetry"
)

// AnalysisIDKey is set by handlers that resolve an analysis so it is logged.
const AnalysisIDKey = "analysisId"

// Logging emits one structured log line per request and records it in metrics
// under the matched route.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest("server "+c.Request.Method+" "+route, status, latency)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       route,
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"bytes":       c.Writer.Size(),
			"client_ip":   c.ClientIP(),
		}
		if user := UserEmailFromContext(c); user != "" {
			fields["user"] = user
		}
		if id, ok := c.Get(AnalysisIDKey); ok {
			fields["analysis_id"] = id
		}
		telemetry.Info("request.complete", fields)
	}
}
