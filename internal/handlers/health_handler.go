package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/comunidad/backend/internal/models"
)

// HealthChecker probes the dependencies behind the service.
type HealthChecker interface {
	Health(ctx context.Context) (map[string]string, bool)
}

// Health handles GET /healthz. Dependency probes share a short deadline so a hung
// database cannot stall the probe.
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks, healthy := checker.Health(ctx)
		resp := models.HealthResponse{
			Status: "ok",
			Store:  checks["store"],
			Redis:  checks["redis"],
		}
		if healthy {
			resp.Store, resp.Redis = "", ""
			writeJSON(w, http.StatusOK, resp)
			return
		}

		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}
