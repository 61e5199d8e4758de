package devserver

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/auth"
	"execal-client/internal/shared/metrics"
	"execal-client/internal/shared/server"
	"execal-client/internal/shared/server/middleware"
	"execal-client/internal/shared/storage/object"
)

// Options configures NewRouter.
type Options struct {
	Store       object.Store
	Signer      *auth.Signer
	AltIDKey    bool
	MockTests   bool
	CORSOrigins []string
	// UploadRate and UploadBurst limit uploads per user. Zero disables the limit.
	UploadRate  float64
	UploadBurst int
	// HashCost overrides the bcrypt cost.
	HashCost int
	Now      func() time.Time
}

// NewRouter builds the dev backend engine with a fresh in-memory repository.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("devserver: object store is required")
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("devserver: token signer is required")
	}

	svc := &Service{
		Repo:      NewMemoryRepo(),
		Store:     opts.Store,
		Signer:    opts.Signer,
		MockTests: opts.MockTests,
		HashCost:  opts.HashCost,
		Now:       opts.Now,
	}
	h := NewHandler(svc)
	h.AltIDKey = opts.AltIDKey

	r := server.NewEngine(opts.CORSOrigins)
	r.GET("/metrics", metrics.Handler())
	h.RegisterPublicRoutes(r)

	authed := r.Group("/")
	authed.Use(middleware.Bearer(opts.Signer))
	h.RegisterRoutes(authed, middleware.Throttle(middleware.Limit{Rate: opts.UploadRate, Burst: opts.UploadBurst}, nil))
	return r, nil
}
