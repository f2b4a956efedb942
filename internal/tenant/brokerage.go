// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package tenant manages brokerages, the unit of multi-tenant isolation.
//
// Every user, role, and session belongs to exactly one brokerage, and the
// access token carries its id in the brn claim. Cross-tenant reads are
// impossible by construction: all queries are scoped by tenant id.
package tenant

import "time"

// Brokerage is one tenant of the platform.
type Brokerage struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Slug is the URL-safe handle derived from the name, unique platform-wide.
	Slug string `json:"slug"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
