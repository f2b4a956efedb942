// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package security

import (
	"context"
	"time"

	"github.com/propelacrm/propela/pkg/pagination"
)

// Store abstracts login-history and audit-event persistence.
type Store interface {
	// RecordAttempt appends one login attempt.
	RecordAttempt(ctx context.Context, attempt *LoginAttempt) error

	// CountRecentFailures counts failed attempts for the (email, ipHash)
	// pair since the given instant.
	CountRecentFailures(ctx context.Context, email, ipHash string, since time.Time) (int, error)

	// ListRecentSuccesses returns the user's most recent successful logins,
	// newest first, up to limit.
	ListRecentSuccesses(ctx context.Context, userID string, limit int) ([]LoginAttempt, error)

	// DeleteAttemptsBefore trims history older than the cutoff. Returns the
	// number of rows deleted.
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// RecordEvent appends one audit event.
	RecordEvent(ctx context.Context, event *SecurityEvent) error

	// ListEvents returns a user's audit events, newest first, with the total
	// count for pagination metadata.
	ListEvents(ctx context.Context, userID string, params pagination.Params) ([]SecurityEvent, int, error)
}
