package api

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/scheduler"
)

// Automation actions accepted by POST /api/automation.
const (
	ActionUpdateStats    = "update-stats"
	ActionDetectInactive = "detect-inactive"
	ActionRun            = "run"
	ActionStart          = "start"
	ActionStop           = "stop"
)

// AutomationRequest is the body of POST /api/automation.
type AutomationRequest struct {
	Action string `json:"action"`
}

// AutomationResponse reports the outcome of an action and the resulting state.
type AutomationResponse struct {
	Action   string                   `json:"action"`
	Changed  *bool                    `json:"changed,omitempty"`
	Run      *models.SyncRun          `json:"run,omitempty"`
	Report   *BatchSummary            `json:"report,omitempty"`
	Inactive []*models.TrackedAccount `json:"inactive,omitempty"`
	Status   scheduler.Status         `json:"status"`
}

// BatchSummary condenses a batch report for API consumers.
type BatchSummary struct {
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Outcomes  []models.BatchOutcome `json:"outcomes"`
}

func summarize(report models.BatchReport) *BatchSummary {
	outcomes := report.Outcomes
	if outcomes == nil {
		outcomes = []models.BatchOutcome{}
	}
	return &BatchSummary{
		Total:     len(outcomes),
		Succeeded: report.Succeeded(),
		Failed:    report.Failed(),
		Outcomes:  outcomes,
	}
}

// Automation handles GET and POST /api/automation
func (h *Handler) Automation(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		h.writeJSON(w, http.StatusOK, h.automation.Status())
		return
	}

	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp := AutomationResponse{Action: req.Action}

	switch req.Action {
	case ActionStart:
		changed := h.automation.Start(h.baseCtx)
		resp.Changed = &changed

	case ActionStop:
		changed := h.automation.Stop()
		resp.Changed = &changed

	case ActionRun:
		run, err := h.automation.RunOnce(detach(w, r))
		if err != nil {
			h.logger.Error("manual sync cycle failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Sync cycle failed")
			return
		}
		resp.Run = &run

	case ActionUpdateStats:
		report, err := h.automation.UpdateStats(detach(w, r))
		if err != nil {
			h.logger.Error("manual stats update failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Stats update failed")
			return
		}
		resp.Report = summarize(report)

	case ActionDetectInactive:
		inactive, err := h.automation.InactiveAccounts(r.Context())
		if err != nil {
			h.logger.Error("inactivity scan failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Inactivity scan failed")
			return
		}
		resp.Inactive = nonNil(inactive)

	default:
		h.writeError(w, http.StatusBadRequest, "Unknown action: "+strconv.Quote(req.Action))
		return
	}

	h.logger.Info("automation action handled", "action", req.Action)
	resp.Status = h.automation.Status()
	h.writeJSON(w, http.StatusOK, resp)
}

// ListRuns handles GET /api/automation/runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet) {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sync runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func nonNil(accounts []*models.TrackedAccount) []*models.TrackedAccount {
	if accounts == nil {
		return []*models.TrackedAccount{}
	}
	return accounts
}
