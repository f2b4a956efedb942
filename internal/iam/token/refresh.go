// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package token issues the credential pair: short-lived signed access tokens
and long-lived opaque refresh tokens.

# Refresh Rotation

Refresh tokens are single use. Redeeming one atomically revokes it and
issues a replacement inside one storage transaction, so two concurrent
redemptions of the same token cannot both succeed. A redemption that finds
the token already revoked is treated as replay of a stolen token and
reported as [ErrRefreshReuse] so the caller can burn the whole session.

Only a keyed hash of each refresh token is stored. The key lives in server
configuration, so a database leak alone is not enough to mint valid tokens.
*/
package token

import (
	"errors"
	"time"
)

// ErrRefreshReuse marks redemption of a refresh token that was already
// rotated away. The caller is expected to revoke the owning session.
var ErrRefreshReuse = errors.New("token: refresh token reuse detected")

// RefreshRecord is the stored form of one refresh token.
type RefreshRecord struct {
	ID        string
	UserID    string
	SessionID string

	// TokenHash is the keyed hash of the raw token. The raw value is never
	// persisted.
	TokenHash string

	// IPHash and DeviceHash snapshot the fingerprint at issuance for audit.
	IPHash     string
	DeviceHash string

	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the record is neither revoked nor expired at now.
func (r *RefreshRecord) Live(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
