// Package health exposes liveness and readiness probes. The service itself
// holds no state, so readiness reduces to whether the upstream platform
// endpoints answer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// CheckFunc probes one upstream dependency.
type CheckFunc func(ctx context.Context) error

// Checker performs health checks on the upstream endpoints
type Checker struct {
	searchCheck   CheckFunc
	metadataCheck CheckFunc
	version       string
	checkTimeout  time.Duration
}

// CheckerConfig holds configuration for the health checker
type CheckerConfig struct {
	SearchCheck   CheckFunc
	MetadataCheck CheckFunc
	Version       string
	Timeout       time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		searchCheck:   cfg.SearchCheck,
		metadataCheck: cfg.MetadataCheck,
		version:       cfg.Version,
		checkTimeout:  timeout,
	}
}

func (c *Checker) runCheck(ctx context.Context, fn CheckFunc, failure string) ComponentHealth {
	start := time.Now()

	if fn == nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "check not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  failure,
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckSearchAPI checks the platform's search endpoint
func (c *Checker) CheckSearchAPI(ctx context.Context) ComponentHealth {
	return c.runCheck(ctx, c.searchCheck, "search API probe failed")
}

// CheckMetadataAPI checks the platform's player metadata endpoint
func (c *Checker) CheckMetadataAPI(ctx context.Context) ComponentHealth {
	return c.runCheck(ctx, c.metadataCheck, "metadata API probe failed")
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"search_api":   c.CheckSearchAPI,
		"metadata_api": c.CheckMetadataAPI,
	}

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// One upstream down still leaves the other endpoints usable, so the
	// overall status only degrades rather than failing readiness outright
	// unless everything is unreachable.
	unhealthy := 0
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			unhealthy++
		}
	}
	switch {
	case unhealthy == len(response.Components) && unhealthy > 0:
		response.Status = StatusUnhealthy
	case unhealthy > 0:
		response.Status = StatusDegraded
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles readiness probe requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler handles basic health check requests
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
