package api

import (
	"net/http"
	"time"
)

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet) {
		return
	}

	body := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"scheduler":      h.automation.Status().Running,
	}

	if err := h.accounts.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		body["status"] = "unavailable"
		body["error"] = "store unreachable"
		h.writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	h.writeJSON(w, http.StatusOK, body)
}
