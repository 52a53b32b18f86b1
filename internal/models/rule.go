package models

import "time"

// RuleSeverity classifies how serious a rule match is
type RuleSeverity string

const (
	SeverityLow      RuleSeverity = "low"
	SeverityMedium   RuleSeverity = "medium"
	SeverityHigh     RuleSeverity = "high"
	SeverityCritical RuleSeverity = "critical"
)

// RuleStatus controls whether a rule participates in evaluation
type RuleStatus string

const (
	RuleStatusEnabled  RuleStatus = "enabled"
	RuleStatusDisabled RuleStatus = "disabled"
	RuleStatusTesting  RuleStatus = "testing"
)

// Condition type discriminators for the built-in rule variants
const (
	RuleTypeBruteForce          = "brute_force"
	RuleTypeGeoAnomaly          = "geo_anomaly"
	RuleTypeTimeAnomaly         = "time_anomaly"
	RuleTypeRapidIPChange       = "rapid_ip_change"
	RuleTypeSuspiciousUserAgent = "suspicious_user_agent"
)

// Security event types carried on rule contexts and recent-event projections
const (
	EventLoginSuccess = "login_success"
	EventLoginFailure = "login_failure"
)

// ThreatRule is the stored configuration a detection rule instance is built from
type ThreatRule struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	ConditionType string         `db:"condition_type"`
	Severity      RuleSeverity   `db:"severity"`
	Status        RuleStatus     `db:"status"`
	Config        map[string]any `db:"config"`
	Tags          []string       `db:"tags"`
	Version       int            `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// RecentEvent is a reduced projection of a security event, used as the
// bounded history window inside a RuleContext.
type RecentEvent struct {
	Type      string
	Timestamp time.Time
	IPAddress string
	Success   bool
	Metadata  map[string]string
}

// RuleContext is the unit of evaluation handed to every detection rule.
// Constructed per evaluation, never persisted.
type RuleContext struct {
	UserID       string
	Email        string
	IPAddress    string
	UserAgent    string
	Country      string
	Location     string
	EventType    string
	Timestamp    time.Time
	Metadata     map[string]string
	RecentEvents []RecentEvent
}

// RuleResult is the outcome of evaluating one rule against one context
type RuleResult struct {
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Matched  bool           `json:"matched"`
	Severity RuleSeverity   `json:"severity"`
	Score    int            `json:"score"`
	Reason   string         `json:"reason"`
	Evidence map[string]any `json:"evidence,omitempty"`
	Actions  []string       `json:"actions,omitempty"`
}

// RuleStats exposes per-rule evaluation statistics for observability
type RuleStats struct {
	RuleID           string        `json:"rule_id"`
	RuleName         string        `json:"rule_name"`
	Invocations      int64         `json:"invocations"`
	Matches          int64         `json:"matches"`
	LastTriggered    *time.Time    `json:"last_triggered,omitempty"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
}

// RuleFilter narrows rule listing queries
type RuleFilter struct {
	ConditionType string
	Status        RuleStatus
	Severity      RuleSeverity
	Tag           string
	Limit         int
	Offset        int
}
