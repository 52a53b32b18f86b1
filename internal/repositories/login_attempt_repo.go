package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository is the read/write path over persisted
// authentication events. Writes are append-only; reads are always
// bounded by a time window and a row cap.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record persists a login attempt. Attempts are immutable once written.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts
			(id, user_id, email, ip_address, user_agent, success, failure_reason,
			 device_type, browser, os, suspicious, risk_score, metadata, attempt_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.UserID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.DeviceType,
		attempt.Browser,
		attempt.OS,
		attempt.Suspicious,
		attempt.RiskScore,
		attempt.Metadata,
		attempt.AttemptTime,
	)
	return database.MapPostgresError(err)
}

// RecentByEmail returns the newest attempts for an email within the
// window, newest first, capped at limit.
func (r *LoginAttemptRepository) RecentByEmail(ctx context.Context, email string, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, user_id, email, ip_address, user_agent, success, failure_reason,
		       device_type, browser, os, suspicious, risk_score, metadata, attempt_time
		FROM login_attempts
		WHERE email = $1 AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// RecentEvents returns the bounded recent-event projection for an email,
// used to build rule contexts. Newest first, capped at limit.
func (r *LoginAttemptRepository) RecentEvents(ctx context.Context, email string, since time.Time, limit int) ([]models.RecentEvent, error) {
	query := `
		SELECT success, ip_address, metadata, attempt_time
		FROM login_attempts
		WHERE email = $1 AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var events []models.RecentEvent
	for rows.Next() {
		var ev models.RecentEvent
		if err := rows.Scan(&ev.Success, &ev.IPAddress, &ev.Metadata, &ev.Timestamp); err != nil {
			return nil, err
		}
		if ev.Success {
			ev.Type = models.EventLoginSuccess
		} else {
			ev.Type = models.EventLoginFailure
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FailedCountByEmail returns the number of failed attempts for an email
// within the window.
func (r *LoginAttemptRepository) FailedCountByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// FailedCountByIP returns the number of failed attempts from an IP
// within the window.
func (r *LoginAttemptRepository) FailedCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// StatsByEmail aggregates attempt statistics for an email within the window.
func (r *LoginAttemptRepository) StatsByEmail(ctx context.Context, email string, since time.Time) (*models.LoginAttemptStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success = false),
		       COUNT(DISTINCT ip_address),
		       COALESCE(AVG(risk_score), 0),
		       MAX(attempt_time),
		       MAX(attempt_time) FILTER (WHERE success = true)
		FROM login_attempts
		WHERE email = $1 AND attempt_time >= $2
	`

	stats := &models.LoginAttemptStats{Email: email}
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(
		&stats.TotalAttempts,
		&stats.FailedAttempts,
		&stats.DistinctIPs,
		&stats.AverageRiskScore,
		&stats.LastAttemptTime,
		&stats.LastSuccessTime,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return stats, nil
}

// DeleteOlderThan removes attempts past the retention horizon.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM login_attempts WHERE attempt_time < $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func scanAttempts(rows pgx.Rows) ([]*models.LoginAttempt, error) {
	var attempts []*models.LoginAttempt
	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Email,
			&a.IPAddress,
			&a.UserAgent,
			&a.Success,
			&a.FailureReason,
			&a.DeviceType,
			&a.Browser,
			&a.OS,
			&a.Suspicious,
			&a.RiskScore,
			&a.Metadata,
			&a.AttemptTime,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return attempts, nil
}
