// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package security watches the login surface: it enforces the lockout window,
keeps the login history, and flags pattern anomalies on successful logins.

Monitoring observes and records; it never blocks a login on its own except
through the lockout rule. A detector failure must not take authentication
down with it.
*/
package security

import "time"

// LoginAttempt is one recorded login, successful or not.
//
// Identity material is stored hashed. Geo and browser family stay readable:
// they feed the anomaly comparison and the user-facing history.
type LoginAttempt struct {
	ID     string `json:"id"`
	Email  string `json:"-"`
	UserID string `json:"-"`

	IPHash        string `json:"-"`
	DeviceHash    string `json:"-"`
	Geo           string `json:"geo,omitempty"`
	BrowserFamily string `json:"browser_family,omitempty"`

	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Security event types.
const (
	EventSuspiciousLogin = "suspicious_login"
	EventLockout         = "lockout_triggered"
	EventRefreshReuse    = "refresh_token_reuse"
	EventDeviceMismatch  = "session_device_mismatch"
	EventPasswordChanged = "password_changed"
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent is an append-only audit entry. Events are never updated or
// deleted by application code.
type SecurityEvent struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`

	Type     string            `json:"type"`
	Severity string            `json:"severity"`
	Details  map[string]string `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
