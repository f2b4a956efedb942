// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package tenant

import "context"

// Store abstracts brokerage persistence.
type Store interface {
	// Create persists a new brokerage.
	Create(ctx context.Context, brokerage *Brokerage) error

	// FindByID resolves a brokerage by primary key.
	FindByID(ctx context.Context, id string) (*Brokerage, error)

	// FindBySlug resolves a brokerage by its unique slug.
	FindBySlug(ctx context.Context, slug string) (*Brokerage, error)
}
