// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/dberr"
)

// PostgresStore implements [Store] on the tenants.brokerage table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create persists a new brokerage row.
func (store *PostgresStore) Create(ctx context.Context, brokerage *Brokerage) error {
	const query = `
		INSERT INTO tenants.brokerage (id, name, slug, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5)`

	now := time.Now()
	brokerage.CreatedAt = now
	brokerage.UpdatedAt = now

	_, err := store.pool.Exec(ctx, query,
		brokerage.ID,
		brokerage.Name,
		brokerage.Slug,
		brokerage.CreatedAt,
		brokerage.UpdatedAt,
	)
	if err != nil {
		// Slug uniqueness is enforced by the index; a provisioning race
		// surfaces as a Conflict the same way an exhausted suffix search does.
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("Brokerage name is already taken")
		}
		return dberr.Query("postgres_brokerage_create_failed", err)
	}
	return nil
}

// FindByID resolves a brokerage by primary key.
func (store *PostgresStore) FindByID(ctx context.Context, id string) (*Brokerage, error) {
	const query = "SELECT id, name, slug, createdat, updatedat FROM tenants.brokerage WHERE id = $1"
	return store.scanBrokerage(store.pool.QueryRow(ctx, query, id))
}

// FindBySlug resolves a brokerage by its unique slug.
func (store *PostgresStore) FindBySlug(ctx context.Context, slug string) (*Brokerage, error) {
	const query = "SELECT id, name, slug, createdat, updatedat FROM tenants.brokerage WHERE slug = $1"
	return store.scanBrokerage(store.pool.QueryRow(ctx, query, slug))
}

func (store *PostgresStore) scanBrokerage(row pgx.Row) (*Brokerage, error) {
	brokerage := &Brokerage{}
	err := row.Scan(
		&brokerage.ID,
		&brokerage.Name,
		&brokerage.Slug,
		&brokerage.CreatedAt,
		&brokerage.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Brokerage")
		}
		return nil, dberr.Query("postgres_brokerage_scan_failed", err)
	}
	return brokerage, nil
}
