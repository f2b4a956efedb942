// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Security: Token issuer, cookie configuration, lockout and session caps.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "propela-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in access tokens.
	AuthIssuer = "propela.app"

	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/v1/auth"

	// AccessTokenTTL is the lifetime of a signed access token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the lifetime of a refresh token and, by extension,
	// the maximum idle lifetime of the session it belongs to.
	RefreshTokenTTL = 7 * 24 * time.Hour

	// AccessTokenCookieName is the name of the http-only cookie carrying the
	// access token for browser clients that never touch it from script.
	AccessTokenCookieName = "access_token"
)

// # Security Policy

const (
	// MaxLoginAttempts is the number of failed logins per (email, ip) tolerated
	// inside the lockout window before further attempts are rejected.
	MaxLoginAttempts = 5

	// LockoutWindow is the trailing window over which failed logins are counted.
	LockoutWindow = 30 * time.Minute

	// MaxConcurrentSessions caps the number of active sessions per user.
	// Creating a session beyond the cap evicts the oldest active one.
	MaxConcurrentSessions = 5

	// MaxRefreshTokensPerUser caps stored refresh-token records per user.
	// Pruning revokes the oldest records first.
	MaxRefreshTokensPerUser = 5

	// SuspiciousLoginSampleSize is how many recent successful logins are
	// compared against the current attempt by the suspicious-activity check.
	SuspiciousLoginSampleSize = 5

	// LoginHistoryRetention is how long login attempts are kept before the
	// janitor trims them. Must exceed LockoutWindow.
	LoginHistoryRetention = 30 * 24 * time.Hour

	// PermissionCacheTTL bounds staleness of cached permission maps. Role and
	// grant mutations invalidate synchronously; the TTL covers missed fanouts.
	PermissionCacheTTL = 5 * time.Minute

	// JanitorSchedule is the cron expression for the hourly cleanup sweep of
	// expired sessions, refresh tokens, and stale login history.
	JanitorSchedule = "7 * * * *"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
)

// # Database Schemas

const (
	SchemaIAM     = "iam"
	SchemaTenants = "tenants"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixPermissionMap = "iam:permmap:"
	RedisPrefixVerifyToken   = "iam:verify_token:"
)
