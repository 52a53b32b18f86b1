package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
	pkghttp "github.com/bluelight-hub/authguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AttemptReporter exposes attempt statistics for administration
type AttemptReporter interface {
	GetAttemptStats(ctx context.Context, email string, window time.Duration) (*models.LoginAttemptStats, error)
}

// LockoutAdmin exposes lockout inspection and reset
type LockoutAdmin interface {
	CheckLockout(ctx context.Context, email string) (*models.LockoutStatus, error)
	ResetFailedAttempts(ctx context.Context, email string) error
}

// AdminHandler serves operational endpoints for security staff
type AdminHandler struct {
	attempts AttemptReporter
	lockouts LockoutAdmin
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(attempts AttemptReporter, lockouts LockoutAdmin) *AdminHandler {
	return &AdminHandler{attempts: attempts, lockouts: lockouts}
}

// LockoutStatus reports the lockout state of an account
func (h *AdminHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	status, err := h.lockouts.CheckLockout(r.Context(), email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// UnlockAccount clears the lockout state of an account
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	if err := h.lockouts.ResetFailedAttempts(r.Context(), email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttemptStats returns aggregate attempt statistics for an account
func (h *AdminHandler) AttemptStats(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			pkghttp.WriteBadRequest(w, "Invalid window duration")
			return
		}
		window = parsed
	}

	stats, err := h.attempts.GetAttemptStats(r.Context(), email, window)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))
	if err := validate.Var(email, "required,email"); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid email address")
		return "", false
	}
	return email, true
}
