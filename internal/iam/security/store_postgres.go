// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package security

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/platform/dberr"
	"github.com/propelacrm/propela/pkg/pagination"
)

// PostgresStore implements [Store] on iam.login_attempt and iam.security_event.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RecordAttempt appends one login attempt.
func (store *PostgresStore) RecordAttempt(ctx context.Context, attempt *LoginAttempt) error {
	const query = `
		INSERT INTO iam.login_attempt
			(id, email, userid, iphash, devicehash, geo, browserfamily,
			 success, failurereason, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := store.pool.Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.UserID,
		attempt.IPHash,
		attempt.DeviceHash,
		attempt.Geo,
		attempt.BrowserFamily,
		attempt.Success,
		attempt.FailureReason,
		attempt.CreatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_attempt_record_failed", err)
	}
	return nil
}

// CountRecentFailures counts failed logins inside the lockout window.
func (store *PostgresStore) CountRecentFailures(ctx context.Context, email, ipHash string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM iam.login_attempt
		WHERE email = $1 AND iphash = $2 AND success = FALSE AND createdat >= $3`

	var count int
	if err := store.pool.QueryRow(ctx, query, email, ipHash, since).Scan(&count); err != nil {
		return 0, dberr.Query("postgres_attempt_count_failed", err)
	}
	return count, nil
}

// ListRecentSuccesses returns the newest successful logins for a user.
func (store *PostgresStore) ListRecentSuccesses(ctx context.Context, userID string, limit int) ([]LoginAttempt, error) {
	const query = `
		SELECT id, email, userid, iphash, devicehash, geo, browserfamily,
		       success, failurereason, createdat
		FROM iam.login_attempt
		WHERE userid = $1 AND success = TRUE
		ORDER BY createdat DESC
		LIMIT $2`

	rows, err := store.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, dberr.Query("postgres_attempt_list_failed", err)
	}
	defer rows.Close()

	var attempts []LoginAttempt
	for rows.Next() {
		var attempt LoginAttempt
		err := rows.Scan(
			&attempt.ID,
			&attempt.Email,
			&attempt.UserID,
			&attempt.IPHash,
			&attempt.DeviceHash,
			&attempt.Geo,
			&attempt.BrowserFamily,
			&attempt.Success,
			&attempt.FailureReason,
			&attempt.CreatedAt,
		)
		if err != nil {
			return nil, dberr.Query("postgres_attempt_scan_failed", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// DeleteAttemptsBefore trims login history older than the cutoff.
func (store *PostgresStore) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = "DELETE FROM iam.login_attempt WHERE createdat < $1"

	tag, err := store.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, dberr.Query("postgres_attempt_trim_failed", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordEvent appends one audit event. Details are stored as jsonb.
func (store *PostgresStore) RecordEvent(ctx context.Context, event *SecurityEvent) error {
	const query = `
		INSERT INTO iam.security_event
			(id, userid, tenantid, type, severity, details, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	details, err := json.Marshal(event.Details)
	if err != nil {
		return dberr.Query("postgres_event_encode_failed", err)
	}

	_, err = store.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.TenantID,
		event.Type,
		event.Severity,
		details,
		event.CreatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_event_record_failed", err)
	}
	return nil
}

// ListEvents returns a page of a user's audit events, newest first.
func (store *PostgresStore) ListEvents(ctx context.Context, userID string, params pagination.Params) ([]SecurityEvent, int, error) {
	const countQuery = "SELECT COUNT(*) FROM iam.security_event WHERE userid = $1"

	var total int
	if err := store.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, dberr.Query("postgres_event_count_failed", err)
	}

	const query = `
		SELECT id, userid, tenantid, type, severity, details, createdat
		FROM iam.security_event
		WHERE userid = $1
		ORDER BY createdat DESC
		LIMIT $2 OFFSET $3`

	rows, err := store.pool.Query(ctx, query, userID, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, dberr.Query("postgres_event_list_failed", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var event SecurityEvent
		var details []byte
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.TenantID,
			&event.Type,
			&event.Severity,
			&details,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, 0, dberr.Query("postgres_event_scan_failed", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, 0, dberr.Query("postgres_event_decode_failed", err)
			}
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}
