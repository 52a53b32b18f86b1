package auth

import (
	"context"
	"errors"

	"github.com/bluelight-hub/authguard/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserStore provides user lookup for credential verification
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Verifier checks submitted credentials against stored password hashes
type Verifier struct {
	users UserStore
}

func NewVerifier(users UserStore) *Verifier {
	return &Verifier{users: users}
}

// dummy hash compared against when the user does not exist, so lookup
// misses and password mismatches take a similar amount of time.
var dummyHash = []byte("$2a$14$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Verify returns the user when the credentials match. Unknown accounts
// and wrong passwords both return ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}

	if !user.Active {
		return nil, models.ErrForbidden
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

// HashPassword hashes a password at the cost used across the service
func HashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
