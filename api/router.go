package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Harvester handler.Harvester
	Cache     *cache.Cache
	Jobs      *handler.JobStore

	// JobsWG tracks background jobs so shutdown can wait for them.
	JobsWG *sync.WaitGroup

	StartTime time.Time
	Version   string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
// ctx bounds the middleware's background goroutines.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(deps.Harvester, deps.StartTime, deps.Version))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Harvest (synchronous)
	protected.POST("/harvest", handler.Harvest(deps.Harvester, deps.Cache))

	// Jobs (async + webhook)
	protected.POST("/jobs", handler.PostJob(deps.Harvester, deps.Jobs, deps.JobsWG))
	protected.GET("/jobs/:id", handler.GetJob(deps.Jobs))

	return r
}
