// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(ctx context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - ctx: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(ctx context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account.

		Parameters:
		  - ctx: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(ctx context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - ctx: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(ctx context.Context, userID, newHash string) error

	/*
		UpdateStatus moves the account to a new lifecycle state.

		Parameters:
		  - ctx: context.Context
		  - userID: string
		  - status: Status

		Returns:
		  - error: Persistence failures
	*/
	UpdateStatus(ctx context.Context, userID string, status Status) error
}

// # Volatile Data Access

// VerificationTokenRepository stores short-lived email verification tokens.
type VerificationTokenRepository interface {

	// Set stores a verification token associated with a userID.
	Set(ctx context.Context, token string, userID string, ttl time.Duration) error

	// Get retrieves the userID associated with a given verification token.
	Get(ctx context.Context, token string) (string, error)

	// Delete removes a verification token after successful use.
	Delete(ctx context.Context, token string) error
}
