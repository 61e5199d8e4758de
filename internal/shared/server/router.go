// Package server builds the gin engine shared by HTTP entry points.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/server/middleware"
	"execal-client/internal/shared/server/respond"
)

// NewEngine constructs a gin engine with the standard middleware chain.
// Routes are registered by the caller. Unknown routes and methods answer in
// the same {"detail": ...} shape as handler errors.
func NewEngine(corsOrigins []string) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(corsOrigins),
	)
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		respond.Error(c, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
