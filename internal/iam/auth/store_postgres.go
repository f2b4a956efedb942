// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/dberr"
)

// PostgresUserRepository implements [UserRepository] on the iam.user table.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of [UserRepository].
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, tenantid, email, passwordhash, fullname, status,
	secondfactorenabled, secondfactorsecret, createdat, updatedat`

// FindByID resolves a user by primary key.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM iam."user" WHERE id = $1`
	return repository.scanUser(repository.pool.QueryRow(ctx, query, id))
}

// FindByEmail resolves a user by email, case-insensitively.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM iam."user" WHERE LOWER(email) = LOWER($1)`
	return repository.scanUser(repository.pool.QueryRow(ctx, query, email))
}

// Create persists a new user row.
func (repository *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO iam."user"
			(id, tenantid, email, passwordhash, fullname, status,
			 secondfactorenabled, secondfactorsecret, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.TenantID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		string(user.Status),
		user.SecondFactorEnabled,
		user.SecondFactorSecret,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// A registration racing another on the same email loses here rather
		// than at the early uniqueness check.
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("Email is already registered")
		}
		return dberr.Query("postgres_user_create_failed", err)
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `UPDATE iam."user" SET passwordhash = $2, updatedat = $3 WHERE id = $1`
	if _, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now()); err != nil {
		return dberr.Query("postgres_user_update_password_failed", err)
	}
	return nil
}

// UpdateStatus moves the account to a new lifecycle state.
func (repository *PostgresUserRepository) UpdateStatus(ctx context.Context, userID string, status Status) error {
	const query = `UPDATE iam."user" SET status = $2, updatedat = $3 WHERE id = $1`
	if _, err := repository.pool.Exec(ctx, query, userID, string(status), time.Now()); err != nil {
		return dberr.Query("postgres_user_update_status_failed", err)
	}
	return nil
}

func (repository *PostgresUserRepository) scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var status string
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&status,
		&user.SecondFactorEnabled,
		&user.SecondFactorSecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, dberr.Query("postgres_user_scan_failed", err)
	}
	user.Status = Status(status)
	return user, nil
}
