// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package token

import (
	"context"
	"time"
)

// RefreshStore abstracts refresh-token persistence.
type RefreshStore interface {
	// Create persists a new record.
	Create(ctx context.Context, record *RefreshRecord) error

	// FindByHash resolves a record by its stored token hash.
	FindByHash(ctx context.Context, tokenHash string) (*RefreshRecord, error)

	// ListActiveForUser returns the user's live records ordered oldest first.
	ListActiveForUser(ctx context.Context, userID string) ([]RefreshRecord, error)

	// Exchange atomically revokes the record identified by oldID and persists
	// its replacement in one transaction. If the record was already revoked,
	// nothing is written and [ErrRefreshReuse] is returned.
	Exchange(ctx context.Context, oldID string, replacement *RefreshRecord) error

	// Revoke marks one record revoked. Idempotent.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForUser revokes every live record of a user. Returns the
	// number revoked.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)

	// RevokeForSession revokes every live record belonging to one session.
	RevokeForSession(ctx context.Context, sessionID string, at time.Time) (int, error)

	// DeleteExpired removes records that expired before the cutoff. Returns
	// the number of rows deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
