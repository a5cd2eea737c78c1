// Package httpapi wires the Gin transport for the automation engine's ops
// surface: health and readiness probes, Prometheus metrics, sweep status,
// manual sweep triggers and read-only ledger listing.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access log
//  4. Metrics, outside Recovery so panics are counted as 500s
//  5. Recovery
//  6. Gzip (not for /metrics, promhttp negotiates its own encoding)
//  7. CORS, only when an allowlist is configured
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-autodaft/internal/config"
	"github.com/tbourn/go-autodaft/internal/http/handlers"
	"github.com/tbourn/go-autodaft/internal/http/middleware"
)

// Deps are the collaborators the ops endpoints read from.
type Deps struct {
	Sweeps  handlers.Sweeps
	Ledger  handlers.ApplicationReader
	Ping    handlers.PingFunc
	Version string
	Log     zerolog.Logger
}

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Log, "/health", "/ready", "/metrics"))
	r.Use(defaultHTTPMetrics().Handler())
	r.Use(middleware.Recovery())
	r.Use(limitBody(64 << 10))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "If-None-Match", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Sweeps, deps.Ledger, deps.Ping, deps.Version)

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.OpsHeaders())
	{
		api.GET("/status", h.Status)
		api.GET("/preferences/:id/applications", h.ListApplications)

		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		sweeps := api.Group("/sweeps", rl.Handler())
		sweeps.POST("/match", h.TriggerMatch)
		sweeps.POST("/expiry", h.TriggerExpiry)
	}
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *middleware.HTTPMetrics
)

// defaultHTTPMetrics registers the request collectors on the default registry
// the first time an engine is built; later engines share them.
func defaultHTTPMetrics() *middleware.HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	})
	return httpMetrics
}

// limitBody caps request bodies. No ops endpoint takes a body, so the cap is
// small.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
