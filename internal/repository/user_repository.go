package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Vr3n/crown-vitality-research/internal/database"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/utils"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

const userColumns = "id, name, email, email_verified, image, password_hash, created_at, updated_at"

type UserRepo struct {
	db    *sqlx.DB
	newID func() string
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db, newID: uuid.NewString} }

// Create hashes the password, inserts the user and returns its id.
func (r *UserRepo) Create(ctx context.Context, name, email, password string, cost int) (string, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return "", err
	}
	id := r.newID()
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash) VALUES (?,?,?,?)",
		id, strings.TrimSpace(name), email, hash)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
