package models

import "time"

// LoginAttempt represents a single authentication attempt. Records are
// immutable once persisted; history queries only ever read them.
type LoginAttempt struct {
	ID            string            `db:"id"`
	UserID        *string           `db:"user_id"`
	Email         string            `db:"email"`
	IPAddress     string            `db:"ip_address"`
	UserAgent     string            `db:"user_agent"`
	Success       bool              `db:"success"`
	FailureReason *string           `db:"failure_reason"`
	DeviceType    string            `db:"device_type"`
	Browser       string            `db:"browser"`
	OS            string            `db:"os"`
	Suspicious    bool              `db:"suspicious"`
	RiskScore     int               `db:"risk_score"`
	Metadata      map[string]string `db:"metadata"`
	AttemptTime   time.Time         `db:"attempt_time"`
}

// LoginAttemptStats aggregates per-email attempt statistics for reporting
type LoginAttemptStats struct {
	Email            string
	TotalAttempts    int
	FailedAttempts   int
	DistinctIPs      int
	AverageRiskScore float64
	LastAttemptTime  *time.Time
	LastSuccessTime  *time.Time
}

// LockoutStatus reports the lockout state of an account at check time
type LockoutStatus struct {
	Locked         bool
	FailedAttempts int
	LockedUntil    *time.Time
}
