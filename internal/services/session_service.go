package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bluelight-hub/authguard/internal/config"
	"github.com/bluelight-hub/authguard/internal/events"
	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/notify"
	"github.com/bluelight-hub/authguard/internal/useragent"
	pkglogger "github.com/bluelight-hub/authguard/pkg/logger"
	"github.com/google/uuid"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	UpdateRiskProfile(ctx context.Context, sessionID string, profile *models.SessionRiskProfile) error
	Touch(ctx context.Context, sessionID string) error
	Terminate(ctx context.Context, sessionID string) error
}

// Per-flag score contributions, summed and capped at 100
const (
	flagScoreNewDevice        = 15
	flagScoreNewLocation      = 10
	flagScoreRapidLocation    = 30
	flagScoreHighActivity     = 15
	flagScoreConcurrentLimit  = 10
	flagScoreFailedLogins     = 20
	flagScoreSuspiciousUA     = 20
	maxSessionRiskScore       = 100
	recentSessionHistoryLimit = 50
)

// SessionService manages session lifecycle and risk enrichment. Risk
// profiles are derived from the user's own session history plus recent
// failed logins; updates only ever touch the session being enriched.
type SessionService struct {
	sessions   SessionRepository
	attempts   LoginAttemptRepository
	resolver   geo.Resolver
	cfg        config.SecurityConfig
	sink       events.Sink
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
	now        func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(
	sessions SessionRepository,
	attempts LoginAttemptRepository,
	resolver geo.Resolver,
	cfg config.SecurityConfig,
	sink events.Sink,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		attempts:   attempts,
		resolver:   resolver,
		cfg:        cfg,
		sink:       sink,
		dispatcher: dispatcher,
		logger:     logger,
		audit:      audit,
		now:        time.Now,
	}
}

// StartSession creates a session for an authenticated user and emits the
// session.created event. Device attributes are parsed from the user agent
// immediately; risk enrichment happens separately via EnhanceSession.
func (s *SessionService) StartSession(ctx context.Context, user *models.User, ipAddress, userAgent, loginMethod string) (*models.Session, error) {
	now := s.now()
	cls := useragent.Classify(userAgent)

	session := &models.Session{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Email:         user.Email,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		LoginMethod:   loginMethod,
		DeviceType:    cls.DeviceType,
		Browser:       cls.Browser,
		OS:            cls.OS,
		ActivityCount: 1,
		Active:        true,
		LastActivity:  now,
		CreatedAt:     now,
	}

	if loc, err := s.resolver.Resolve(ctx, ipAddress); err != nil {
		s.logger.Warn("geo lookup failed for new session",
			slog.String("session_id", session.ID), slog.Any("error", err))
	} else if loc != nil {
		session.Location = loc.Label()
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to create session",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.emit(ctx, models.EventSessionCreated, map[string]any{
		"session_id": session.ID,
		"user_id":    session.UserID,
		"ip_address": session.IPAddress,
		"device":     session.DeviceType,
		"location":   session.Location,
	})
	s.audit.LogSessionEvent(models.EventSessionCreated, session.ID, session.UserID, nil)
	return session, nil
}

// EnhanceSession computes the session's risk profile from history and
// writes it back. Returns ErrSessionNotFound for unknown sessions.
func (s *SessionService) EnhanceSession(ctx context.Context, sessionID string) (*models.SessionRiskProfile, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		s.logger.Error("failed to load session for enrichment",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	profile := s.buildRiskProfile(ctx, session)

	if err := s.sessions.UpdateRiskProfile(ctx, sessionID, profile); err != nil {
		s.logger.Error("failed to persist session risk profile",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if profile.RiskScore >= s.cfg.HighRiskSessionThreshold {
		s.emit(ctx, models.EventSessionRiskDetected, map[string]any{
			"session_id": sessionID,
			"user_id":    session.UserID,
			"risk_score": profile.RiskScore,
			"flags":      profile.SuspiciousFlags,
		})
		s.dispatchHighRisk(session, profile)
	}

	return profile, nil
}

func (s *SessionService) buildRiskProfile(ctx context.Context, session *models.Session) *models.SessionRiskProfile {
	cls := useragent.Classify(session.UserAgent)

	profile := &models.SessionRiskProfile{
		SessionID:  session.ID,
		DeviceType: cls.DeviceType,
		Browser:    cls.Browser,
		OS:         cls.OS,
		Location:   session.Location,
	}

	addFlag := func(flag string, score int) {
		profile.SuspiciousFlags = append(profile.SuspiciousFlags, flag)
		profile.RiskScore += score
	}

	if session.UserAgent == "" || cls.IsBot || cls.Suspicious {
		addFlag(models.FlagSuspiciousUserAgent, flagScoreSuspiciousUA)
	}

	now := s.now()
	since := now.Add(-s.cfg.RecentSessionLookback)
	history, histErr := s.sessions.RecentByUser(ctx, session.UserID, since, recentSessionHistoryLimit)
	if histErr != nil {
		// Degraded enrichment: history-based flags are skipped, the
		// session keeps whatever flags we could compute locally.
		s.logger.Warn("session history unavailable, partial risk profile",
			slog.String("session_id", session.ID), slog.Any("error", histErr))
	}

	prior := make([]*models.Session, 0, len(history))
	for _, h := range history {
		if h.ID != session.ID {
			prior = append(prior, h)
		}
	}

	if histErr == nil {
		if len(prior) == 0 {
			// A first session has no history to match against, so both
			// the device and the location count as unseen.
			addFlag(models.FlagNewDevice, flagScoreNewDevice)
			addFlag(models.FlagNewLocation, flagScoreNewLocation)
		} else {
			if !s.knownDevice(prior, cls.Signature()) {
				addFlag(models.FlagNewDevice, flagScoreNewDevice)
			}
			if session.Location != "" && !s.knownLocation(prior, session.Location) {
				addFlag(models.FlagNewLocation, flagScoreNewLocation)
			}
			if s.rapidLocationChange(prior, session, now) {
				addFlag(models.FlagRapidLocationChange, flagScoreRapidLocation)
			}
		}
	}

	if session.ActivityCount > s.cfg.HighActivityThreshold {
		addFlag(models.FlagHighActivityRate, flagScoreHighActivity)
	}

	if active, err := s.sessions.CountActiveByUser(ctx, session.UserID); err == nil {
		if active > s.cfg.MaxConcurrentSessions {
			addFlag(models.FlagConcurrentSessionLimit, flagScoreConcurrentLimit)
		}
	}

	if s.recentFailuresExceeded(ctx, session, now) {
		addFlag(models.FlagHighFailedLoginCount, flagScoreFailedLogins)
	}

	if profile.RiskScore > maxSessionRiskScore {
		profile.RiskScore = maxSessionRiskScore
	}
	return profile
}

// recentFailuresExceeded checks failed logins against the account and,
// separately, from the session's IP. Either crossing the threshold flags
// the session.
func (s *SessionService) recentFailuresExceeded(ctx context.Context, session *models.Session, now time.Time) bool {
	since := now.Add(-s.cfg.LockoutWindow)
	if failed, err := s.attempts.FailedCountByEmail(ctx, session.Email, since); err == nil {
		if failed >= s.cfg.FailedLoginFlagThreshold {
			return true
		}
	}
	if failed, err := s.attempts.FailedCountByIP(ctx, session.IPAddress, since); err == nil {
		if failed >= s.cfg.FailedLoginFlagThreshold {
			return true
		}
	}
	return false
}

func (s *SessionService) knownDevice(prior []*models.Session, signature string) bool {
	for _, p := range prior {
		if useragent.Classify(p.UserAgent).Signature() == signature {
			return true
		}
	}
	return false
}

func (s *SessionService) knownLocation(prior []*models.Session, location string) bool {
	for _, p := range prior {
		if p.Location == location {
			return true
		}
	}
	return false
}

// rapidLocationChange reports whether the most recent prior session was
// started from a different location inside the rapid-change window.
func (s *SessionService) rapidLocationChange(prior []*models.Session, session *models.Session, now time.Time) bool {
	if session.Location == "" {
		return false
	}
	for _, p := range prior {
		if p.Location == "" {
			continue
		}
		if p.Location != session.Location && now.Sub(p.CreatedAt) <= s.cfg.RapidLocationWindow {
			return true
		}
		// prior is newest-first; the first located session decides
		return false
	}
	return false
}

// Heartbeat records session activity
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string) error {
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		s.logger.Error("failed to record session heartbeat",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.emit(ctx, models.EventSessionHeartbeat, map[string]any{"session_id": sessionID})
	return nil
}

// TerminateSession deactivates a session and emits the terminated event
func (s *SessionService) TerminateSession(ctx context.Context, sessionID, reason string) error {
	if err := s.sessions.Terminate(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		s.logger.Error("failed to terminate session",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.emit(ctx, models.EventSessionTerminated, map[string]any{
		"session_id": sessionID,
		"reason":     reason,
	})
	s.audit.LogSessionEvent(models.EventSessionTerminated, sessionID, "", map[string]string{"reason": reason})
	return nil
}

// GetSession returns a session by ID
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, models.ErrInternalServer
	}
	return session, nil
}

func (s *SessionService) emit(ctx context.Context, event string, payload map[string]any) {
	if err := s.sink.Emit(ctx, event, payload); err != nil {
		s.logger.Warn("event emit failed",
			slog.String("event", event), slog.Any("error", err))
	}
}

func (s *SessionService) dispatchHighRisk(session *models.Session, profile *models.SessionRiskProfile) {
	alert := notify.Alert{
		Category:  notify.CategoryHighRiskSession,
		Severity:  models.SeverityHigh,
		Email:     session.Email,
		UserID:    session.UserID,
		IPAddress: session.IPAddress,
		Reason:    "session risk score exceeded threshold",
		Evidence: map[string]any{
			"session_id": session.ID,
			"risk_score": profile.RiskScore,
			"flags":      profile.SuspiciousFlags,
		},
		OccurredAt: s.now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
			s.logger.Error("high risk session alert failed", slog.Any("error", err))
		}
	}()
}
