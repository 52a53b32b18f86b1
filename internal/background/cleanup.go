package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPurger removes attempt records past the retention horizon
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CounterPurger removes stale rate limit counter windows
type CounterPurger interface {
	DeleteStaleWindows(ctx context.Context, windowSize time.Duration, cutoff time.Time) (int64, error)
}

// SessionExpirer deactivates sessions past their idle or absolute timeout
type SessionExpirer interface {
	ExpireStale(ctx context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error)
}

// CleanupManager periodically purges expired login attempts and stale
// rate limit counters from the database, and expires timed-out sessions
type CleanupManager struct {
	attempts        AttemptPurger
	counters        CounterPurger
	sessions        SessionExpirer
	retention       time.Duration
	interval        time.Duration
	windowSize      time.Duration
	idleTimeout     time.Duration
	absoluteTimeout time.Duration
	logger          *slog.Logger
	stopCh          chan struct{}
}

// NewCleanupManager creates a new cleanup manager. windowSize must match
// the rate limiter window backing the counter store.
func NewCleanupManager(
	attempts AttemptPurger,
	counters CounterPurger,
	sessions SessionExpirer,
	retention time.Duration,
	interval time.Duration,
	windowSize time.Duration,
	idleTimeout time.Duration,
	absoluteTimeout time.Duration,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		attempts:        attempts,
		counters:        counters,
		sessions:        sessions,
		retention:       retention,
		interval:        interval,
		windowSize:      windowSize,
		idleTimeout:     idleTimeout,
		absoluteTimeout: absoluteTimeout,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	deleted, err := cm.attempts.DeleteOlderThan(cleanupCtx, now.Add(-cm.retention))
	if err != nil {
		cm.logger.Error("failed to purge old login attempts", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("purged old login attempts", slog.Int64("rows_deleted", deleted))
	}

	if cm.sessions != nil {
		expired, err := cm.sessions.ExpireStale(cleanupCtx, now.Add(-cm.idleTimeout), now.Add(-cm.absoluteTimeout))
		if err != nil {
			cm.logger.Error("failed to expire stale sessions", slog.Any("error", err))
		} else if expired > 0 {
			cm.logger.Info("expired stale sessions", slog.Int64("rows_updated", expired))
		}
	}

	if cm.counters == nil {
		return
	}

	// Counter windows older than a day can never be consulted again
	stale, err := cm.counters.DeleteStaleWindows(cleanupCtx, cm.windowSize, now.Add(-24*time.Hour))
	if err != nil {
		cm.logger.Error("failed to purge stale rate limit counters", slog.Any("error", err))
	} else if stale > 0 {
		cm.logger.Info("purged stale rate limit counters", slog.Int64("rows_deleted", stale))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
