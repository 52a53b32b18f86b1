// Package ratelimit implements a fixed-window request limiter with a
// pluggable backing store. A distributed store keeps counts correct
// across process instances; an in-process fallback takes over when the
// distributed store is unavailable, with a documented weaker guarantee
// (single-process correctness only).
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
)

// KeyFunc derives a stable, non-guessable limiter key from a client IP
// and a route name. Keys must not leak PII into the backing store.
type KeyFunc func(ip, route string) string

// DefaultKeyFunc hashes IP + route so raw addresses never reach the store.
func DefaultKeyFunc(ip, route string) string {
	sum := sha256.Sum256([]byte(ip + ":" + route))
	return hex.EncodeToString(sum[:16])
}

// Config holds fixed limiter configuration.
type Config struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
	KeyFunc     KeyFunc

	// SkipPrivateIPs exempts loopback and private-range addresses from
	// IP-scoped limiting. Intended for emergency/operational endpoints;
	// policy, not part of the generic counting algorithm.
	SkipPrivateIPs bool
}

// Status reports the remaining budget for a key in the current window.
type Status struct {
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key per fixed window.
type Limiter struct {
	config   Config
	store    CounterStore
	fallback *MemoryStore
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a limiter over the given store. A nil store means the
// in-process counter is the primary (and only) backend.
func New(cfg Config, store CounterStore, logger *slog.Logger) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	fallback := NewMemoryStore()
	if store == nil {
		store = fallback
	}
	return &Limiter{
		config:   cfg,
		store:    store,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Consume spends one request from the key's window budget. It returns a
// *models.RateLimitError carrying the retry-after duration once the
// window budget is exhausted.
func (l *Limiter) Consume(ctx context.Context, key string) error {
	now := l.now()
	window := l.windowID(now)
	storeKey := l.config.KeyPrefix + key

	count, err := l.store.Incr(ctx, storeKey, window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, using in-process fallback",
			slog.String("key_prefix", l.config.KeyPrefix),
			slog.Any("error", err))
		count, err = l.fallback.Incr(ctx, storeKey, window)
		if err != nil {
			return err
		}
	}

	if count > int64(l.config.MaxRequests) {
		return &models.RateLimitError{
			Key:        key,
			RetryAfter: l.windowEnd(window).Sub(now),
		}
	}
	return nil
}

// ConsumeRequest applies the limiter to an inbound request identified by
// client IP and route name, honoring the private-IP exemption policy.
func (l *Limiter) ConsumeRequest(ctx context.Context, ip, route string) error {
	if l.config.SkipPrivateIPs && isPrivateIP(ip) {
		return nil
	}
	return l.Consume(ctx, l.config.KeyFunc(ip, route))
}

// Status reports the remaining budget and window reset time for a key
// without consuming from it.
func (l *Limiter) Status(ctx context.Context, key string) (Status, error) {
	now := l.now()
	window := l.windowID(now)
	storeKey := l.config.KeyPrefix + key

	count, err := l.store.Get(ctx, storeKey, window)
	if err != nil {
		count, err = l.fallback.Get(ctx, storeKey, window)
		if err != nil {
			return Status{}, err
		}
	}

	remaining := l.config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Status{Remaining: remaining, ResetAt: l.windowEnd(window)}, nil
}

// Destroy releases backing resources.
func (l *Limiter) Destroy() {
	if err := l.store.Close(); err != nil {
		l.logger.Warn("failed to close rate limit store", slog.Any("error", err))
	}
	_ = l.fallback.Close()
}

func (l *Limiter) windowID(now time.Time) int64 {
	return now.UnixMilli() / l.config.Window.Milliseconds()
}

func (l *Limiter) windowEnd(window int64) time.Time {
	return time.UnixMilli((window + 1) * l.config.Window.Milliseconds())
}

func isPrivateIP(raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
