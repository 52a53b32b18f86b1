package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluelight-hub/authguard/internal/config"
	"github.com/bluelight-hub/authguard/internal/events"
	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/notify"
	"github.com/bluelight-hub/authguard/internal/risk"
	"github.com/bluelight-hub/authguard/internal/useragent"
	pkglogger "github.com/bluelight-hub/authguard/pkg/logger"
	"github.com/google/uuid"
)

// LoginAttemptRepository defines the interface for attempt persistence
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	RecentByEmail(ctx context.Context, email string, since time.Time, limit int) ([]*models.LoginAttempt, error)
	RecentEvents(ctx context.Context, email string, since time.Time, limit int) ([]models.RecentEvent, error)
	FailedCountByEmail(ctx context.Context, email string, since time.Time) (int, error)
	FailedCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
	StatsByEmail(ctx context.Context, email string, since time.Time) (*models.LoginAttemptStats, error)
}

// RuleEvaluator runs the live threat rule catalog against a context
type RuleEvaluator interface {
	Evaluate(rc models.RuleContext) []models.RuleResult
}

// LockoutManager tracks failed attempts and account lockout state
type LockoutManager interface {
	RecordFailure(ctx context.Context, email, ipAddress string) (*models.LockoutStatus, error)
	ResetFailedAttempts(ctx context.Context, email string) error
}

// AttemptInput carries the observable facts of one authentication attempt
type AttemptInput struct {
	UserID        *string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
}

// AttemptOutcome is the full result of processing one attempt
type AttemptOutcome struct {
	Attempt     *models.LoginAttempt
	RuleMatches []models.RuleResult
	Lockout     *models.LockoutStatus
}

// AttemptService orchestrates the processing of a login attempt: scoring,
// persistence, threat rule evaluation, lockout bookkeeping and alerting.
//
// Persistence of the attempt record is the only hard dependency. History
// reads, geo lookups, rule evaluation and alerting all degrade: their
// failure narrows the analysis but never blocks the attempt.
type AttemptService struct {
	attempts   LoginAttemptRepository
	lockouts   LockoutManager
	evaluator  RuleEvaluator
	resolver   geo.Resolver
	cfg        config.SecurityConfig
	sink       events.Sink
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
	now        func() time.Time
}

// NewAttemptService creates a new AttemptService
func NewAttemptService(
	attempts LoginAttemptRepository,
	lockouts LockoutManager,
	evaluator RuleEvaluator,
	resolver geo.Resolver,
	cfg config.SecurityConfig,
	sink events.Sink,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AttemptService {
	return &AttemptService{
		attempts:   attempts,
		lockouts:   lockouts,
		evaluator:  evaluator,
		resolver:   resolver,
		cfg:        cfg,
		sink:       sink,
		dispatcher: dispatcher,
		logger:     logger,
		audit:      audit,
		now:        time.Now,
	}
}

// RecordAttempt processes one authentication attempt end to end
func (s *AttemptService) RecordAttempt(ctx context.Context, input AttemptInput) (*AttemptOutcome, error) {
	now := s.now()
	cls := useragent.Classify(input.UserAgent)

	attempt := &models.LoginAttempt{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Email:       input.Email,
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
		Success:     input.Success,
		DeviceType:  cls.DeviceType,
		Browser:     cls.Browser,
		OS:          cls.OS,
		Metadata:    map[string]string{},
		AttemptTime: now,
	}
	if input.FailureReason != "" {
		reason := input.FailureReason
		attempt.FailureReason = &reason
	}

	location := s.resolveLocation(ctx, input.IPAddress, attempt.Metadata)

	recent, err := s.attempts.RecentByEmail(ctx, input.Email, now.Add(-s.cfg.HistoryLookback), s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Warn("attempt history unavailable, scoring without history",
			slog.String("email", pkglogger.SanitizedEmail(input.Email)),
			slog.Any("error", err))
		recent = nil
	}

	attempt.RiskScore = risk.Score(attempt, recent)
	attempt.Suspicious = attempt.RiskScore > s.cfg.SuspiciousScoreThreshold || cls.IsBot

	// Read the rule window before persisting so the current attempt does
	// not end up inside its own history.
	ruleEvents, err := s.attempts.RecentEvents(ctx, input.Email, now.Add(-s.cfg.RuleWindow), s.cfg.RuleEventLimit)
	if err != nil {
		s.logger.Warn("event history unavailable, rules run on current event only",
			slog.String("email", pkglogger.SanitizedEmail(input.Email)),
			slog.Any("error", err))
		ruleEvents = nil
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt",
			slog.String("email", pkglogger.SanitizedEmail(input.Email)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     attemptEventType(input.Success),
		UserID:        stringOrEmpty(input.UserID),
		IPAddress:     input.IPAddress,
		UserAgent:     input.UserAgent,
		Success:       input.Success,
		RiskScore:     attempt.RiskScore,
		FailureReason: input.FailureReason,
	})
	s.emit(ctx, attemptEventType(input.Success), map[string]any{
		"attempt_id": attempt.ID,
		"ip_address": attempt.IPAddress,
		"risk_score": attempt.RiskScore,
		"suspicious": attempt.Suspicious,
	})

	if attempt.RiskScore >= s.cfg.AlertScoreThreshold {
		s.dispatchAsync(notify.Alert{
			Category:  notify.CategoryHighRiskLogin,
			Severity:  models.SeverityHigh,
			Email:     input.Email,
			UserID:    stringOrEmpty(input.UserID),
			IPAddress: input.IPAddress,
			Reason:    "login attempt risk score exceeded alert threshold",
			Evidence: map[string]any{
				"attempt_id": attempt.ID,
				"risk_score": attempt.RiskScore,
			},
			OccurredAt: now,
		})
	}

	outcome := &AttemptOutcome{Attempt: attempt}
	outcome.RuleMatches = s.evaluateRules(attempt, location, ruleEvents)

	if input.Success {
		if err := s.lockouts.ResetFailedAttempts(ctx, input.Email); err != nil {
			s.logger.Warn("failed to reset lockout counter after successful login",
				slog.String("email", pkglogger.SanitizedEmail(input.Email)))
		}
		outcome.Lockout = &models.LockoutStatus{}
		return outcome, nil
	}

	status, err := s.lockouts.RecordFailure(ctx, input.Email, input.IPAddress)
	if err != nil {
		s.logger.Error("lockout bookkeeping failed",
			slog.String("email", pkglogger.SanitizedEmail(input.Email)),
			slog.Any("error", err))
		status = &models.LockoutStatus{}
	}
	outcome.Lockout = status

	if status.Locked {
		s.dispatchAsync(notify.Alert{
			Category:  notify.CategoryAccountLockout,
			Severity:  models.SeverityHigh,
			Email:     input.Email,
			UserID:    stringOrEmpty(input.UserID),
			IPAddress: input.IPAddress,
			Reason:    "account locked after repeated failed logins",
			Evidence: map[string]any{
				"failed_attempts": status.FailedAttempts,
				"locked_until":    status.LockedUntil,
			},
			OccurredAt: now,
		})
	}

	return outcome, nil
}

// evaluateRules builds the rule context from the pre-persist event window
// and runs the catalog, forwarding every match to the alert dispatcher.
func (s *AttemptService) evaluateRules(attempt *models.LoginAttempt, location *geo.Location, history []models.RecentEvent) []models.RuleResult {
	rc := models.RuleContext{
		UserID:       stringOrEmpty(attempt.UserID),
		Email:        attempt.Email,
		IPAddress:    attempt.IPAddress,
		UserAgent:    attempt.UserAgent,
		EventType:    attemptEventType(attempt.Success),
		Timestamp:    attempt.AttemptTime,
		Metadata:     attempt.Metadata,
		RecentEvents: history,
	}
	if location != nil {
		rc.Country = location.Country
		rc.Location = location.Label()
	}

	matches := s.evaluator.Evaluate(rc)
	for _, m := range matches {
		s.audit.LogRuleMatch(m.RuleID, m.RuleName, string(m.Severity), rc.UserID, m.Score)
		s.dispatchAsync(notify.Alert{
			Category:   notify.CategoryRuleMatch,
			Severity:   m.Severity,
			Email:      attempt.Email,
			UserID:     rc.UserID,
			IPAddress:  attempt.IPAddress,
			Reason:     m.Reason,
			Evidence:   m.Evidence,
			OccurredAt: attempt.AttemptTime,
		})
	}
	return matches
}

// GetAttemptStats returns aggregate attempt statistics for an account
func (s *AttemptService) GetAttemptStats(ctx context.Context, email string, window time.Duration) (*models.LoginAttemptStats, error) {
	stats, err := s.attempts.StatsByEmail(ctx, email, s.now().Add(-window))
	if err != nil {
		s.logger.Error("failed to load attempt stats",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

func (s *AttemptService) resolveLocation(ctx context.Context, ip string, metadata map[string]string) *geo.Location {
	loc, err := s.resolver.Resolve(ctx, ip)
	if err != nil {
		s.logger.Warn("geo lookup failed", slog.String("ip", pkglogger.SanitizedIP(ip)), slog.Any("error", err))
		return nil
	}
	if loc == nil {
		return nil
	}
	if loc.Country != "" {
		metadata["country"] = loc.Country
	}
	if label := loc.Label(); label != "" {
		metadata["location"] = label
	}
	return loc
}

func (s *AttemptService) emit(ctx context.Context, event string, payload map[string]any) {
	if err := s.sink.Emit(ctx, event, payload); err != nil {
		s.logger.Warn("event emit failed", slog.String("event", event), slog.Any("error", err))
	}
}

// dispatchAsync hands the alert off without blocking the login path. The
// detached context outlives the request on purpose.
func (s *AttemptService) dispatchAsync(alert notify.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
			s.logger.Error("alert dispatch failed",
				slog.String("category", alert.Category), slog.Any("error", err))
		}
	}()
}

func attemptEventType(success bool) string {
	if success {
		return models.EventLoginSuccess
	}
	return models.EventLoginFailure
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
