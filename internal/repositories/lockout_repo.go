package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository persists per-account failure counters and lock
// windows. Lock expiry is read-time: the service layer decides when a
// stored lock no longer counts.
type LockoutRepository struct {
	db *database.DB
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// Get returns the current failure count and lock expiry for an email.
// An account with no row has zero failures and no lock.
func (r *LockoutRepository) Get(ctx context.Context, email string) (int, *time.Time, error) {
	query := `
		SELECT failed_attempts, locked_until FROM account_lockouts
		WHERE email = $1
	`

	var failed int
	var lockedUntil *time.Time
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(&failed, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}
	return failed, lockedUntil, nil
}

// IncrementFailures bumps the failure counter and returns the new count.
// A counter last touched before windowStart is stale and restarts at 1.
func (r *LockoutRepository) IncrementFailures(ctx context.Context, email string, windowStart time.Time) (int, error) {
	query := `
		INSERT INTO account_lockouts (email, failed_attempts, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (email) DO UPDATE SET
			failed_attempts = CASE
				WHEN account_lockouts.updated_at < $2 THEN 1
				ELSE account_lockouts.failed_attempts + 1
			END,
			updated_at = now()
		RETURNING failed_attempts
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, windowStart).Scan(&count)
	return count, database.MapPostgresError(err)
}

// Lock sets the lock expiry for an email.
func (r *LockoutRepository) Lock(ctx context.Context, email string, until time.Time) error {
	query := `
		INSERT INTO account_lockouts (email, failed_attempts, locked_until, updated_at)
		VALUES ($1, 0, $2, now())
		ON CONFLICT (email) DO UPDATE SET
			locked_until = $2,
			updated_at = now()
	`

	_, err := r.db.Pool.Exec(ctx, query, email, until)
	return database.MapPostgresError(err)
}

// ClearExpired resets the counter and clears the lock only when the
// stored lock has already expired. The guard makes the reset idempotent
// under concurrent callers: whoever runs second matches zero rows.
func (r *LockoutRepository) ClearExpired(ctx context.Context, email string, now time.Time) (bool, error) {
	query := `
		UPDATE account_lockouts
		SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE email = $1 AND locked_until IS NOT NULL AND locked_until <= $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, email, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reset clears counters and lock unconditionally.
func (r *LockoutRepository) Reset(ctx context.Context, email string) error {
	query := `
		UPDATE account_lockouts
		SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE email = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, email)
	return database.MapPostgresError(err)
}
