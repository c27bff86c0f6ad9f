// Package api wires the HTTP surface: the three pipeline endpoints plus
// health probes and metrics.
package api

import (
	"net/http"

	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/extractor"
	"github.com/dramastream/backend/internal/health"
	"github.com/dramastream/backend/internal/logger"
	"github.com/dramastream/backend/internal/metrics"
	"github.com/dramastream/backend/internal/middleware"
	"github.com/dramastream/backend/internal/resolver"
	"github.com/dramastream/backend/internal/streamer"
)

type Router struct {
	mux     *http.ServeMux
	handler http.Handler
}

// Deps collects everything the router mounts.
type Deps struct {
	Search   *resolver.Handler
	Video    *extractor.Handler
	Download *streamer.Handler
	Health   *health.Handler
	Metrics  *metrics.Metrics
	Logger   *logger.Logger

	AllowedOrigins []string
}

func NewRouter(deps Deps) *Router {
	r := &Router{mux: http.NewServeMux()}
	r.setupRoutes(deps)

	r.handler = middleware.Chain(r.mux,
		middleware.RequestID,
		middleware.Logging(deps.Logger, deps.Metrics),
		middleware.CORS(deps.AllowedOrigins),
		middleware.Recoverer(deps.Logger),
	)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes(deps Deps) {
	// Pipeline endpoints
	r.mux.HandleFunc("GET /search", apperrors.HandleFunc(deps.Search.Search))
	r.mux.HandleFunc("GET /video", apperrors.HandleFunc(deps.Video.Extract))
	r.mux.HandleFunc("GET /download", apperrors.HandleFunc(deps.Download.Download))

	// Operational endpoints
	r.mux.HandleFunc("GET /health", deps.Health.HealthHandler)
	r.mux.HandleFunc("GET /health/live", deps.Health.LivenessHandler)
	r.mux.HandleFunc("GET /health/ready", deps.Health.ReadinessHandler)
	r.mux.HandleFunc("GET /metrics", deps.Metrics.Handler())
}
