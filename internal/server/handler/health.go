package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheckFunc probes one dependency.
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks  map[string]HealthCheckFunc
	running func() int
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. running reports the number of
// live instances and may be nil.
func NewHealthHandler(checks map[string]HealthCheckFunc, running func() int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		running: running,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck runs every dependency probe and answers 503 when one fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.running != nil {
		body["instances"] = h.running()
	}
	writeJSON(w, code, body)
}
