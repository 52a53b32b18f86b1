package repositories

import (
	"context"
	"errors"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, active, created_at
		FROM users
		WHERE email = $1
	`

	var u models.User
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Active,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &u, nil
}
