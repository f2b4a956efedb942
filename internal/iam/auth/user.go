// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package auth implements the authentication core: credential validation and
the login, refresh, and logout flows.

It orchestrates the surrounding collaborators (session registry, token
issuer, security monitor, access resolver) but owns none of their storage.

# Failure Non-Disclosure

Every authentication failure leaving this package is the same generic 401.
Internally each failure carries an [apperr.AuthKind] so logs and audit
events stay precise; the HTTP surface never reveals whether the email
exists, the password was wrong, or the account is locked.
*/
package auth

import "time"

// # Account Status

// Status is the account lifecycle state.
type Status string

const (
	// StatusPending marks an account created but not yet email-verified.
	// Pending accounts cannot log in.
	StatusPending Status = "pending_verification"

	// StatusActive marks a fully usable account.
	StatusActive Status = "active"

	// StatusSuspended marks an account blocked by an administrator.
	StatusSuspended Status = "suspended"

	// StatusInactive marks a deactivated account.
	StatusInactive Status = "inactive"
)

// # Domain Entities

// User is a member of one brokerage.
type User struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FullName     string `json:"full_name"`
	Status       Status `json:"status"`

	// SecondFactorEnabled gates the TOTP step during login. The secret is
	// opaque to this package; the configured verifier interprets it.
	SecondFactorEnabled bool   `json:"second_factor_enabled"`
	SecondFactorSecret  string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanLogin reports whether the account state permits authentication.
func (u *User) CanLogin() bool {
	return u.Status == StatusActive
}

// # Field Identifiers

// Field names for validation and response mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldFullName        = "full_name"
	FieldBrokerageName   = "brokerage_name"
	FieldToken           = "token"
	FieldSecondFactor    = "second_factor_code"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldMessage         = "message"
)
