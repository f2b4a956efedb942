// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package session

import (
	"context"
	"time"
)

// Store abstracts session persistence.
//
// Implementations map their storage errors to [apperr.AppError] values;
// callers never branch on driver errors.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, session *Session) error

	// Find resolves a session by id, revoked or not.
	Find(ctx context.Context, id string) (*Session, error)

	// ListActiveForUser returns the user's live sessions ordered oldest first.
	ListActiveForUser(ctx context.Context, userID string) ([]Session, error)

	// CountActiveForUser returns how many live sessions the user holds.
	CountActiveForUser(ctx context.Context, userID string) (int, error)

	// Touch updates the session's last-activity timestamp.
	Touch(ctx context.Context, id string, at time.Time) error

	// Revoke marks one session revoked. Revoking a revoked session is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForUser marks every live session of a user revoked, except the
	// optional keepID. Returns the number of sessions revoked.
	RevokeAllForUser(ctx context.Context, userID, keepID string, at time.Time) (int, error)

	// DeleteExpired removes sessions that expired before the cutoff. Returns
	// the number of rows deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	// DeleteExpiredForUser removes one user's sessions that expired before
	// the cutoff. Returns the number of rows deleted.
	DeleteExpiredForUser(ctx context.Context, userID string, cutoff time.Time) (int, error)
}
