package handler

import (
	"context"
	"log/slog"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Failed string `json:"failed,omitempty"`
}

// HealthCheck probes one dependency. Check returns an error when it is
// unreachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler answers GET /health with 503 naming the first dependency
// that does not respond.
func HealthHandler(logger *slog.Logger, checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := c.Check(r.Context()); err != nil {
				logger.Error("health check failed", "dependency", c.Name, "error", err)
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failed: c.Name})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
