package models

import "time"

// Session represents an authenticated session enriched with risk attributes
type Session struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	Email           string    `db:"email"`
	IPAddress       string    `db:"ip_address"`
	UserAgent       string    `db:"user_agent"`
	LoginMethod     string    `db:"login_method"`
	DeviceType      string    `db:"device_type"`
	Browser         string    `db:"browser"`
	OS              string    `db:"os"`
	Location        string    `db:"location"`
	SuspiciousFlags []string  `db:"suspicious_flags"`
	RiskScore       int       `db:"risk_score"`
	ActivityCount   int       `db:"activity_count"`
	Active          bool      `db:"active"`
	LastActivity    time.Time `db:"last_activity"`
	CreatedAt       time.Time `db:"created_at"`
}

// SessionRiskProfile holds the derived risk attributes written back onto a
// session during enrichment. Owned exclusively by the session it describes.
type SessionRiskProfile struct {
	SessionID       string   `json:"session_id"`
	DeviceType      string   `json:"device_type"`
	Browser         string   `json:"browser"`
	OS              string   `json:"os"`
	Location        string   `json:"location"`
	SuspiciousFlags []string `json:"suspicious_flags"`
	RiskScore       int      `json:"risk_score"`
}

// Suspicious session flags. A profile may carry several simultaneously.
const (
	FlagNewDevice              = "new_device"
	FlagNewLocation            = "new_location"
	FlagRapidLocationChange    = "rapid_location_change"
	FlagHighActivityRate       = "high_activity_rate"
	FlagConcurrentSessionLimit = "concurrent_session_limit"
	FlagHighFailedLoginCount   = "high_failed_login_count"
	FlagSuspiciousUserAgent    = "suspicious_user_agent"
)

// Event names emitted to the event sink
const (
	EventSessionCreated      = "session.created"
	EventSessionRiskDetected = "session.risk.detected"
	EventSessionHeartbeat    = "session.heartbeat"
	EventSessionTerminated   = "session.terminated"
)
