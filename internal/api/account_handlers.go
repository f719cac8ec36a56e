package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/leetboard/statsync/internal/syncer"
)

// UpdateStatsRequest is the body of POST /api/accounts/update-stats.
type UpdateStatsRequest struct {
	AccountID string `json:"account_id"`
}

// ListAccounts handles GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet) {
		return
	}

	accounts, err := h.accounts.ListRoster(r.Context())
	if err != nil {
		h.logger.Error("failed to list tracked accounts", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	accounts = nonNil(accounts)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// InactiveAccounts handles GET /api/accounts/inactive
func (h *Handler) InactiveAccounts(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet) {
		return
	}

	inactive, err := h.automation.InactiveAccounts(r.Context())
	if err != nil {
		h.logger.Error("inactivity scan failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Inactivity scan failed")
		return
	}

	inactive = nonNil(inactive)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"accounts": inactive,
		"count":    len(inactive),
	})
}

// UpdateStats handles /api/accounts/update-stats.
// GET refreshes the whole roster; POST {"account_id": "..."} refreshes one account.
func (h *Handler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		report, err := h.automation.UpdateStats(detach(w, r))
		if err != nil {
			h.logger.Error("stats update failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Stats update failed")
			return
		}
		h.writeJSON(w, http.StatusOK, summarize(report))
		return
	}

	var req UpdateStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		h.writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	outcome, err := h.syncer.SyncAccount(detach(w, r), req.AccountID)
	if errors.Is(err, syncer.ErrAccountNotFound) {
		h.writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to sync account", "account_id", req.AccountID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to sync account")
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, outcome)
}
