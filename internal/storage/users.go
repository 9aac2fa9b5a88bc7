package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is an authenticated principal. Account provisioning happens outside
// this service; only the credential lookup lives here.
type User struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	Email      string
	APIKeyHash string
	CreatedAt  time.Time
}

// GetUserByEmail retrieves a user for credential verification.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := db.pool.QueryRow(ctx,
		`SELECT id, company_id, email, api_key_hash, created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.CompanyID, &u.Email, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user row. Used by bootstrap and tests.
func (db *DB) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, company_id, email, api_key_hash, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.CompanyID, u.Email, u.APIKeyHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}
