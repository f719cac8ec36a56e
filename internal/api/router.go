package api

import (
	"net/http"
)

// SetupRoutes registers the control surface on mux. metrics may be nil.
func SetupRoutes(mux *http.ServeMux, h *Handler, metrics http.Handler) {
	mux.HandleFunc("/healthz", h.Healthz)

	mux.HandleFunc("/api/automation", h.Automation)
	mux.HandleFunc("/api/automation/runs", h.ListRuns)

	mux.HandleFunc("/api/accounts", h.ListAccounts)
	mux.HandleFunc("/api/accounts/inactive", h.InactiveAccounts)
	mux.HandleFunc("/api/accounts/update-stats", h.UpdateStats)

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
}
