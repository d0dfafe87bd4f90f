package model

import "time"

// User represents an account as stored in the `users` table. Users are
// created by the auth endpoints and never mutated by the notes core; every
// note, tag and category row points back to exactly one user.
//
// Fields:
//
//	ID            – UUID primary key.
//	Name          – display name.
//	Email         – unique, lower-cased email address.
//	EmailVerified – whether the address has been verified.
//	Image         – optional avatar URL.
//	PasswordHash  – bcrypt hash, never serialised.
type User struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	Image         *string   `db:"image" json:"image,omitempty"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
	ID        uint64     `db:"id"`
	UserID    string     `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}
