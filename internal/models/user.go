package models

import "time"

// User is the minimal account record the authentication flow needs.
// Full profile management lives outside this service.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}
