package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/scheduler"
)

// Automation is the scheduler control surface.
type Automation interface {
	Start(ctx context.Context) bool
	Stop() bool
	RunOnce(ctx context.Context) (models.SyncRun, error)
	UpdateStats(ctx context.Context) (models.BatchReport, error)
	InactiveAccounts(ctx context.Context) ([]*models.TrackedAccount, error)
	Status() scheduler.Status
}

// AccountSyncer refreshes a single account.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID string) (models.BatchOutcome, error)
}

// Handler serves the sync control surface.
type Handler struct {
	automation Automation
	syncer     AccountSyncer
	accounts   models.TrackedAccountRepository
	runs       models.SyncRunRepository
	baseCtx    context.Context
	logger     *slog.Logger
	startTime  time.Time
}

// NewHandler creates a Handler. baseCtx outlives individual requests and is
// handed to the scheduler when it is started over HTTP.
func NewHandler(baseCtx context.Context, automation Automation, syncer AccountSyncer, accounts models.TrackedAccountRepository, runs models.SyncRunRepository, logger *slog.Logger) *Handler {
	return &Handler{
		automation: automation,
		syncer:     syncer,
		accounts:   accounts,
		runs:       runs,
		baseCtx:    baseCtx,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// allowMethods rejects any method not listed and reports whether the request may proceed.
func (h *Handler) allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// detach keeps long sync work alive past a client disconnect and lifts the
// server write deadline for the response.
func detach(w http.ResponseWriter, r *http.Request) context.Context {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	return context.WithoutCancel(r.Context())
}
