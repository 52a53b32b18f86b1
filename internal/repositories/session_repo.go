package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, email, ip_address, user_agent, login_method,
	device_type, browser, os, location, suspicious_flags, risk_score,
	activity_count, active, last_activity, created_at`

// SessionRepository handles session persistence. Risk-profile writes are
// scoped to a single session; history reads never mutate.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions
			(id, user_id, email, ip_address, user_agent, login_method,
			 device_type, browser, os, location, suspicious_flags, risk_score,
			 activity_count, active, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Email,
		session.IPAddress,
		session.UserAgent,
		session.LoginMethod,
		session.DeviceType,
		session.Browser,
		session.OS,
		session.Location,
		session.SuspiciousFlags,
		session.RiskScore,
		session.ActivityCount,
		session.Active,
		session.LastActivity,
		session.CreatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.Email,
		&s.IPAddress,
		&s.UserAgent,
		&s.LoginMethod,
		&s.DeviceType,
		&s.Browser,
		&s.OS,
		&s.Location,
		&s.SuspiciousFlags,
		&s.RiskScore,
		&s.ActivityCount,
		&s.Active,
		&s.LastActivity,
		&s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// RecentByUser returns the user's newest sessions within the lookback
// window, newest first, capped at limit.
func (r *SessionRepository) RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var s models.Session
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Email,
			&s.IPAddress,
			&s.UserAgent,
			&s.LoginMethod,
			&s.DeviceType,
			&s.Browser,
			&s.OS,
			&s.Location,
			&s.SuspiciousFlags,
			&s.RiskScore,
			&s.ActivityCount,
			&s.Active,
			&s.LastActivity,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND active = true`, userID).Scan(&count)
	return count, database.MapPostgresError(err)
}

// UpdateRiskProfile writes the derived risk attributes back onto the
// session row.
func (r *SessionRepository) UpdateRiskProfile(ctx context.Context, sessionID string, profile *models.SessionRiskProfile) error {
	query := `
		UPDATE sessions
		SET device_type = $2, browser = $3, os = $4, location = $5,
		    suspicious_flags = $6, risk_score = $7
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		sessionID,
		profile.DeviceType,
		profile.Browser,
		profile.OS,
		profile.Location,
		profile.SuspiciousFlags,
		profile.RiskScore,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Touch records session activity for idle-timeout and activity-rate
// tracking.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string) error {
	query := `
		UPDATE sessions
		SET last_activity = now(), activity_count = activity_count + 1
		WHERE id = $1 AND active = true
	`

	tag, err := r.db.Pool.Exec(ctx, query, sessionID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ExpireStale deactivates sessions idle past idleCutoff or older than
// absoluteCutoff regardless of activity.
func (r *SessionRepository) ExpireStale(ctx context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET active = false
		WHERE active = true AND (last_activity < $1 OR created_at < $2)
	`

	tag, err := r.db.Pool.Exec(ctx, query, idleCutoff, absoluteCutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) Terminate(ctx context.Context, sessionID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE sessions SET active = false WHERE id = $1`, sessionID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
