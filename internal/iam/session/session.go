// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package session manages the server-side session registry.

Every login creates a session bound to the device that performed it. Access
tokens carry the session id as their jti claim, so a revoked session kills
every token minted for it regardless of remaining token lifetime.

# Device Binding

A session stores hashes of the fingerprint it was created with, never raw
values. Validation recomputes the hash from the presenting request and
revokes the session on mismatch: a stolen token replayed from different
hardware burns the session for the legitimate holder too, which is the
intended outcome.

# Concurrency Cap

A user holds at most [constants.MaxConcurrentSessions] live sessions.
Creating one past the cap evicts the oldest active session by creation time.
*/
package session

import "time"

// Session is one authenticated device context for a user.
type Session struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`

	// DeviceHash and IPHash bind the session to the login fingerprint.
	DeviceHash string `json:"-"`
	IPHash     string `json:"-"`

	// Geo is the coarse location label observed at login, kept readable
	// for the user-facing session list.
	Geo string `json:"geo,omitempty"`

	// RiskScore is the 0-100 score computed at login time.
	RiskScore int `json:"risk_score"`

	IsRevoked      bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Live reports whether the session is neither revoked nor expired at now.
func (s *Session) Live(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}
