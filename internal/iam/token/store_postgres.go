// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package token

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/dberr"
)

// PostgresStore implements [RefreshStore] on the iam.refresh_token table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [RefreshStore].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const refreshColumns = "id, userid, sessionid, tokenhash, iphash, devicehash, expiresat, revokedat, createdat"

const insertRefreshQuery = `
	INSERT INTO iam.refresh_token
		(id, userid, sessionid, tokenhash, iphash, devicehash, expiresat, revokedat, createdat)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Create persists a new refresh-token record.
func (store *PostgresStore) Create(ctx context.Context, record *RefreshRecord) error {
	_, err := store.pool.Exec(ctx, insertRefreshQuery,
		record.ID,
		record.UserID,
		record.SessionID,
		record.TokenHash,
		record.IPHash,
		record.DeviceHash,
		record.ExpiresAt,
		record.RevokedAt,
		record.CreatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_refresh_create_failed", err)
	}
	return nil
}

// FindByHash resolves a record by its deterministic token hash.
func (store *PostgresStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshRecord, error) {
	const query = "SELECT " + refreshColumns + " FROM iam.refresh_token WHERE tokenhash = $1"

	record := &RefreshRecord{}
	err := store.pool.QueryRow(ctx, query, tokenHash).Scan(
		&record.ID,
		&record.UserID,
		&record.SessionID,
		&record.TokenHash,
		&record.IPHash,
		&record.DeviceHash,
		&record.ExpiresAt,
		&record.RevokedAt,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token")
		}
		return nil, dberr.Query("postgres_refresh_scan_failed", err)
	}
	return record, nil
}

// ListActiveForUser returns the user's live records, oldest created first.
func (store *PostgresStore) ListActiveForUser(ctx context.Context, userID string) ([]RefreshRecord, error) {
	const query = "SELECT " + refreshColumns + `
		FROM iam.refresh_token
		WHERE userid = $1 AND revokedat IS NULL AND expiresat > NOW()
		ORDER BY createdat`

	rows, err := store.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, dberr.Query("postgres_refresh_list_failed", err)
	}
	defer rows.Close()

	var records []RefreshRecord
	for rows.Next() {
		var record RefreshRecord
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.SessionID,
			&record.TokenHash,
			&record.IPHash,
			&record.DeviceHash,
			&record.ExpiresAt,
			&record.RevokedAt,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, dberr.Query("postgres_refresh_scan_failed", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

/*
Exchange atomically rotates a refresh token.

The revocation uses a conditional UPDATE on revokedat IS NULL: under two
concurrent redemptions only one transaction sees an affected row, the other
observes zero rows and reports [ErrRefreshReuse] without writing anything.
*/
func (store *PostgresStore) Exchange(ctx context.Context, oldID string, replacement *RefreshRecord) error {
	transaction, err := store.pool.Begin(ctx)
	if err != nil {
		return dberr.Query("postgres_refresh_exchange_begin_failed", err)
	}
	defer transaction.Rollback(ctx)

	const revokeQuery = `
		UPDATE iam.refresh_token SET revokedat = $2
		WHERE id = $1 AND revokedat IS NULL`

	tag, err := transaction.Exec(ctx, revokeQuery, oldID, time.Now())
	if err != nil {
		return dberr.Query("postgres_refresh_exchange_revoke_failed", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshReuse
	}

	_, err = transaction.Exec(ctx, insertRefreshQuery,
		replacement.ID,
		replacement.UserID,
		replacement.SessionID,
		replacement.TokenHash,
		replacement.IPHash,
		replacement.DeviceHash,
		replacement.ExpiresAt,
		replacement.RevokedAt,
		replacement.CreatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_refresh_exchange_insert_failed", err)
	}

	if err := transaction.Commit(ctx); err != nil {
		return dberr.Query("postgres_refresh_exchange_commit_failed", err)
	}
	return nil
}

// Revoke marks one record revoked. Idempotent.
func (store *PostgresStore) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = "UPDATE iam.refresh_token SET revokedat = $2 WHERE id = $1 AND revokedat IS NULL"
	if _, err := store.pool.Exec(ctx, query, id, at); err != nil {
		return dberr.Query("postgres_refresh_revoke_failed", err)
	}
	return nil
}

// RevokeAllForUser revokes every live record of a user.
func (store *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	const query = "UPDATE iam.refresh_token SET revokedat = $2 WHERE userid = $1 AND revokedat IS NULL"

	tag, err := store.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, dberr.Query("postgres_refresh_revoke_all_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

// RevokeForSession revokes every live record belonging to one session.
func (store *PostgresStore) RevokeForSession(ctx context.Context, sessionID string, at time.Time) (int, error) {
	const query = "UPDATE iam.refresh_token SET revokedat = $2 WHERE sessionid = $1 AND revokedat IS NULL"

	tag, err := store.pool.Exec(ctx, query, sessionID, at)
	if err != nil {
		return 0, dberr.Query("postgres_refresh_revoke_session_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes records that expired before the cutoff.
func (store *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	const query = "DELETE FROM iam.refresh_token WHERE expiresat < $1"

	tag, err := store.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, dberr.Query("postgres_refresh_delete_expired_failed", err)
	}
	return int(tag.RowsAffected()), nil
}
