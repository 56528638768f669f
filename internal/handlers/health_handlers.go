package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandlers handles health check and readiness endpoints
type HealthHandlers struct {
	checks    map[string]HealthCheck
	version   string
	startedAt time.Time
	clock     clockwork.Clock
	timeout   time.Duration
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(checks map[string]HealthCheck, version string, clock clockwork.Clock) *HealthHandlers {
	return &HealthHandlers{
		checks:    checks,
		version:   version,
		startedAt: clock.Now(),
		clock:     clock,
		timeout:   3 * time.Second,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// Health handles GET /health. It only reports that the process is serving.
func (h *HealthHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status("healthy"))
}

// Ready handles GET /health/ready and runs every dependency check
func (h *HealthHandlers) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	health := h.status("healthy")
	health.Services = make(map[string]string, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			health.Services[name] = "unhealthy: " + err.Error()
			health.Status = "degraded"
			continue
		}
		health.Services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if health.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) status(state string) *HealthStatus {
	now := h.clock.Now()
	return &HealthStatus{
		Status:    state,
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.startedAt).Round(time.Second).String(),
		Version:   h.version,
	}
}
