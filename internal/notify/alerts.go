// Package notify defines the outbound alert boundary. The risk core
// dispatches alerts fire-and-forget; delivery failures are logged and
// never reach the authentication path.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
)

// Alert categories
const (
	CategoryHighRiskLogin   = "high_risk_login"
	CategoryRuleMatch       = "threat_rule_match"
	CategoryAccountLockout  = "account_lockout"
	CategoryHighRiskSession = "high_risk_session"
)

// Alert is a security alert handed to a dispatcher.
type Alert struct {
	Category   string
	Severity   models.RuleSeverity
	Email      string
	UserID     string
	IPAddress  string
	Reason     string
	Evidence   map[string]any
	OccurredAt time.Time
}

// Dispatcher delivers security alerts. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert Alert) error
}

// LogDispatcher writes alerts to the structured log. It is the default
// when no delivery channel is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, alert Alert) error {
	d.logger.Warn("security alert",
		slog.String("category", alert.Category),
		slog.String("severity", string(alert.Severity)),
		slog.String("email", alert.Email),
		slog.String("ip_address", alert.IPAddress),
		slog.String("reason", alert.Reason),
		slog.Any("evidence", alert.Evidence),
	)
	return nil
}
