package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluelight-hub/authguard/internal/config"
	"github.com/bluelight-hub/authguard/internal/models"
	pkglogger "github.com/bluelight-hub/authguard/pkg/logger"
)

// LockoutRepository defines the interface for lockout state persistence
type LockoutRepository interface {
	Get(ctx context.Context, email string) (int, *time.Time, error)
	IncrementFailures(ctx context.Context, email string, windowStart time.Time) (int, error)
	Lock(ctx context.Context, email string, until time.Time) error
	ClearExpired(ctx context.Context, email string, now time.Time) (bool, error)
	Reset(ctx context.Context, email string) error
}

// LockoutService tracks failed login attempts per account and locks
// accounts that exceed the threshold inside the rolling window.
//
// Lockouts expire passively: expiry is detected at check time, there is
// no background unlock job. Store failures fail open so that a degraded
// database never denies service to legitimate users.
type LockoutService struct {
	repo        LockoutRepository
	cfg         config.SecurityConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockoutRepository, cfg config.SecurityConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		repo:        repo,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// RecordFailure registers a failed attempt and returns the lockout status
// after the failure. Crossing the threshold locks the account for the
// configured duration.
func (s *LockoutService) RecordFailure(ctx context.Context, email, ipAddress string) (*models.LockoutStatus, error) {
	now := s.now()
	windowStart := now.Add(-s.cfg.LockoutWindow)

	failures, err := s.repo.IncrementFailures(ctx, email, windowStart)
	if err != nil {
		s.logger.Error("failed to record lockout failure, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return &models.LockoutStatus{Locked: false, FailedAttempts: 0}, nil
	}

	status := &models.LockoutStatus{FailedAttempts: failures}
	if failures < s.cfg.MaxFailedAttempts {
		return status, nil
	}

	until := now.Add(s.cfg.LockoutDuration)
	if err := s.repo.Lock(ctx, email, until); err != nil {
		s.logger.Error("failed to persist lockout, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return status, nil
	}

	status.Locked = true
	status.LockedUntil = &until
	s.auditLogger.LogLockout(pkglogger.SanitizedEmail(email), ipAddress, failures, until)
	return status, nil
}

// CheckLockout reports whether the account is currently locked. An
// expired lockout is cleared on read, resetting the failure count so the
// account starts fresh.
func (s *LockoutService) CheckLockout(ctx context.Context, email string) (*models.LockoutStatus, error) {
	failures, lockedUntil, err := s.repo.Get(ctx, email)
	if err != nil {
		s.logger.Error("failed to read lockout state, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return &models.LockoutStatus{Locked: false}, nil
	}

	if lockedUntil == nil {
		return &models.LockoutStatus{FailedAttempts: failures}, nil
	}

	now := s.now()
	if now.Before(*lockedUntil) {
		return &models.LockoutStatus{
			Locked:         true,
			FailedAttempts: failures,
			LockedUntil:    lockedUntil,
		}, nil
	}

	cleared, err := s.repo.ClearExpired(ctx, email, now)
	if err != nil {
		s.logger.Error("failed to clear expired lockout, treating as unlocked",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return &models.LockoutStatus{Locked: false}, nil
	}
	if cleared {
		s.logger.Info("lockout expired and cleared",
			slog.String("email", pkglogger.SanitizedEmail(email)))
	}
	return &models.LockoutStatus{Locked: false}, nil
}

// EnforceLockout gates a login attempt: it returns ErrAccountLocked while
// a lockout is active and nil otherwise. Store errors fail open like
// CheckLockout does.
func (s *LockoutService) EnforceLockout(ctx context.Context, email string) error {
	status, err := s.CheckLockout(ctx, email)
	if err != nil {
		return nil
	}
	if status.Locked {
		return models.ErrAccountLocked
	}
	return nil
}

// ResetFailedAttempts clears lockout state after a successful login
func (s *LockoutService) ResetFailedAttempts(ctx context.Context, email string) error {
	if err := s.repo.Reset(ctx, email); err != nil {
		s.logger.Error("failed to reset lockout state",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return err
	}
	return nil
}
