package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prolearn/prolearn/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
	ErrCodeExists   = errors.New("user code already exists")
)

const userColumns = `id, code, email, name, role, password_hash, created_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, code, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Code,
		user.Email,
		user.Name,
		string(user.Role),
		user.PasswordHash,
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "users_code_key" {
				return ErrCodeExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByCode retrieves a user by their minted identifier.
func (r *Repository) GetUserByCode(ctx context.Context, code string) (*model.User, error) {
	return r.getUser(ctx, "code", code)
}

// getUser looks a user up by one of the unique columns. column is never
// user input.
func (r *Repository) getUser(ctx context.Context, column, value string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	var user model.User
	var role string
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&user.ID,
		&user.Code,
		&user.Email,
		&user.Name,
		&role,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	user.Role = model.Role(role)

	return &user, nil
}

// DeleteUserByCode removes a user. The code stays in the ledger.
func (r *Repository) DeleteUserByCode(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
