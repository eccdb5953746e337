package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"manimrender/internal/httpkit"
)

// Health reports liveness; ?deep=true also probes dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "manimrender-api",
		"version": h.version,
		"async":   h.AsyncEnabled(),
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any, len(h.checks)+1)

	checks["storage"] = map[string]any{"status": "ok", "provider": h.sp.Provider()}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checks[name] = runCheck(ctx, h.checks[name])
	}
	return checks
}

func runCheck(ctx context.Context, check HealthCheck) map[string]any {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	extra, err := check(checkCtx)
	result := map[string]any{"status": "ok"}
	for k, v := range extra {
		result[k] = v
	}
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
