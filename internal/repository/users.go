package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openduel/duel-server-go/internal/auth"
)

// ErrUserNotFound is returned when a username is not registered.
var ErrUserNotFound = errors.New("user not found")

// ErrBadCredentials is returned when a password does not match.
var ErrBadCredentials = errors.New("bad credentials")

// User is a registered player account.
type User struct {
	Username  string
	CreatedAt time.Time
}

// UserRepository stores player accounts.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository over the shared pool.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create registers a new user with a bcrypt-hashed password.
func (r *UserRepository) Create(ctx context.Context, username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = r.db.Pool().Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		username, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return nil
}

// Authenticate verifies a username/password pair.
func (r *UserRepository) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var hash string
	var createdAt time.Time
	err := r.db.Pool().QueryRow(ctx,
		`SELECT password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&hash, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	if !auth.CheckPassword(hash, password) {
		return nil, ErrBadCredentials
	}
	return &User{Username: username, CreatedAt: createdAt}, nil
}
