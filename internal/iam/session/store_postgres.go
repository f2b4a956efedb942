// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/dberr"
)

// PostgresStore implements [Store] on the iam.session table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `id, userid, tenantid, devicehash, iphash, geo, riskscore,
	isrevoked, revokedat, expiresat, lastactivityat, createdat`

// Create persists a new session row.
func (store *PostgresStore) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO iam.session
			(id, userid, tenantid, devicehash, iphash, geo, riskscore,
			 isrevoked, revokedat, expiresat, lastactivityat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := store.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TenantID,
		session.DeviceHash,
		session.IPHash,
		session.Geo,
		session.RiskScore,
		session.IsRevoked,
		session.RevokedAt,
		session.ExpiresAt,
		session.LastActivityAt,
		session.CreatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_session_create_failed", err)
	}
	return nil
}

// Find resolves a session by primary key.
func (store *PostgresStore) Find(ctx context.Context, id string) (*Session, error) {
	const query = "SELECT " + sessionColumns + " FROM iam.session WHERE id = $1"
	return scanSession(store.pool.QueryRow(ctx, query, id))
}

// ListActiveForUser returns the user's live sessions, oldest created first.
func (store *PostgresStore) ListActiveForUser(ctx context.Context, userID string) ([]Session, error) {
	const query = "SELECT " + sessionColumns + `
		FROM iam.session
		WHERE userid = $1 AND isrevoked = FALSE AND expiresat > NOW()
		ORDER BY createdat`

	rows, err := store.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, dberr.Query("postgres_session_list_failed", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// CountActiveForUser returns how many live sessions the user holds.
func (store *PostgresStore) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM iam.session
		WHERE userid = $1 AND isrevoked = FALSE AND expiresat > NOW()`

	var count int
	if err := store.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, dberr.Query("postgres_session_count_failed", err)
	}
	return count, nil
}

// Touch updates the last-activity timestamp.
func (store *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	const query = "UPDATE iam.session SET lastactivityat = $2 WHERE id = $1"
	if _, err := store.pool.Exec(ctx, query, id, at); err != nil {
		return dberr.Query("postgres_session_touch_failed", err)
	}
	return nil
}

// Revoke marks one session revoked. Idempotent.
func (store *PostgresStore) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE iam.session SET isrevoked = TRUE, revokedat = $2
		WHERE id = $1 AND isrevoked = FALSE`

	if _, err := store.pool.Exec(ctx, query, id, at); err != nil {
		return dberr.Query("postgres_session_revoke_failed", err)
	}
	return nil
}

// RevokeAllForUser revokes every live session of a user except keepID.
func (store *PostgresStore) RevokeAllForUser(ctx context.Context, userID, keepID string, at time.Time) (int, error) {
	const query = `
		UPDATE iam.session SET isrevoked = TRUE, revokedat = $3
		WHERE userid = $1 AND id <> $2 AND isrevoked = FALSE`

	tag, err := store.pool.Exec(ctx, query, userID, keepID, at)
	if err != nil {
		return 0, dberr.Query("postgres_session_revoke_all_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes sessions that expired before the cutoff.
func (store *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	const query = "DELETE FROM iam.session WHERE expiresat < $1"

	tag, err := store.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, dberr.Query("postgres_session_delete_expired_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

func (store *PostgresStore) DeleteExpiredForUser(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	const query = "DELETE FROM iam.session WHERE userid = $1 AND expiresat < $2"

	tag, err := store.pool.Exec(ctx, query, userID, cutoff)
	if err != nil {
		return 0, dberr.Query("postgres_session_delete_expired_user_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TenantID,
		&session.DeviceHash,
		&session.IPHash,
		&session.Geo,
		&session.RiskScore,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, dberr.Query("postgres_session_scan_failed", err)
	}
	return session, nil
}

func scanSessionRow(rows pgx.Rows) (*Session, error) {
	session := &Session{}
	err := rows.Scan(
		&session.ID,
		&session.UserID,
		&session.TenantID,
		&session.DeviceHash,
		&session.IPHash,
		&session.Geo,
		&session.RiskScore,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Query("postgres_session_scan_failed", err)
	}
	return session, nil
}
