package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/ratelimit"
	"github.com/bluelight-hub/authguard/internal/services"
	pkghttp "github.com/bluelight-hub/authguard/pkg/http"
)

// CredentialVerifier checks submitted credentials
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*models.User, error)
}

// AttemptRecorder processes login attempts through the risk pipeline
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, input services.AttemptInput) (*services.AttemptOutcome, error)
}

// SessionManager controls session lifecycle and risk enrichment
type SessionManager interface {
	StartSession(ctx context.Context, user *models.User, ipAddress, userAgent, loginMethod string) (*models.Session, error)
	EnhanceSession(ctx context.Context, sessionID string) (*models.SessionRiskProfile, error)
	Heartbeat(ctx context.Context, sessionID string) error
	TerminateSession(ctx context.Context, sessionID, reason string) error
}

// LockoutChecker gates logins on account lockout state
type LockoutChecker interface {
	EnforceLockout(ctx context.Context, email string) error
}

// AuthHandler handles the login flow: rate limit, lockout gate, credential
// check, risk pipeline, session creation.
type AuthHandler struct {
	verifier CredentialVerifier
	attempts AttemptRecorder
	sessions SessionManager
	lockouts LockoutChecker
	limiter  *ratelimit.Limiter
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	verifier CredentialVerifier,
	attempts AttemptRecorder,
	sessions SessionManager,
	lockouts LockoutChecker,
	limiter *ratelimit.Limiter,
	ipConfig *pkghttp.IPConfig,
) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		attempts: attempts,
		sessions: sessions,
		lockouts: lockouts,
		limiter:  limiter,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	SessionID   string                     `json:"session_id"`
	RiskProfile *models.SessionRiskProfile `json:"risk_profile,omitempty"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.limiter.ConsumeRequest(r.Context(), ipAddress, "/auth/login"); err != nil {
		var rle *models.RateLimitError
		if errors.As(err, &rle) {
			pkghttp.WriteRateLimited(w, rle.RetryAfter)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if err := h.lockouts.EnforceLockout(r.Context(), req.Email); errors.Is(err, models.ErrAccountLocked) {
		// record the blocked attempt so the history reflects it
		_, _ = h.attempts.RecordAttempt(r.Context(), services.AttemptInput{
			Email:         req.Email,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: "account_locked",
		})
		pkghttp.WriteAccountLocked(w)
		return
	}

	user, verifyErr := h.verifier.Verify(r.Context(), req.Email, req.Password)

	input := services.AttemptInput{
		Email:     req.Email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   verifyErr == nil,
	}
	if user != nil {
		input.UserID = &user.ID
	}
	if verifyErr != nil {
		input.FailureReason = failureReason(verifyErr)
	}

	outcome, recErr := h.attempts.RecordAttempt(r.Context(), input)
	if recErr != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if verifyErr != nil {
		if outcome.Lockout != nil && outcome.Lockout.Locked {
			pkghttp.WriteAccountLocked(w)
			return
		}
		// one generic answer for bad password, unknown account and
		// disabled account, to prevent enumeration
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	session, err := h.sessions.StartSession(r.Context(), user, ipAddress, userAgent, "password")
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := LoginResponse{SessionID: session.ID}
	if profile, err := h.sessions.EnhanceSession(r.Context(), session.ID); err == nil {
		resp.RiskProfile = profile
	}

	writeJSON(w, http.StatusOK, resp)
}

// HeartbeatRequest identifies the session to touch
type HeartbeatRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Heartbeat records session activity
func (h *AuthHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.sessions.Heartbeat(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutRequest identifies the session to terminate
type LogoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Logout terminates a session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.sessions.TerminateSession(r.Context(), req.SessionID, "logout"); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return "invalid_credentials"
	case errors.Is(err, models.ErrForbidden):
		return "account_disabled"
	default:
		return "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
