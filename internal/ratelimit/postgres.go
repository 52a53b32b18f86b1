package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/jackc/pgx/v5"
)

// PostgresStore backs limiter counters with a shared table so counts are
// correct across multiple process instances. The upsert increments and
// reads in a single statement, which serializes concurrent callers per
// (key, window) row.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Incr(ctx context.Context, key string, window int64) (int64, error) {
	query := `
		INSERT INTO rate_limit_counters (counter_key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (counter_key, window_start)
		DO UPDATE SET count = rate_limit_counters.count + 1
		RETURNING count
	`

	var count int64
	err := s.db.Pool.QueryRow(ctx, query, key, window).Scan(&count)
	return count, err
}

func (s *PostgresStore) Get(ctx context.Context, key string, window int64) (int64, error) {
	query := `
		SELECT count FROM rate_limit_counters
		WHERE counter_key = $1 AND window_start = $2
	`

	var count int64
	err := s.db.Pool.QueryRow(ctx, query, key, window).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

// DeleteStaleWindows removes counter rows for windows that ended before
// the cutoff. Called by the background cleanup task.
func (s *PostgresStore) DeleteStaleWindows(ctx context.Context, windowSize time.Duration, cutoff time.Time) (int64, error) {
	if windowSize <= 0 {
		return 0, nil
	}
	staleWindow := cutoff.UnixMilli() / windowSize.Milliseconds()

	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM rate_limit_counters WHERE window_start < $1`, staleWindow)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
