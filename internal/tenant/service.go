// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package tenant

import (
	"context"
	"fmt"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/pkg/slug"
	"github.com/propelacrm/propela/pkg/uuid"
)

// slugSuffixAttempts bounds the search for a free slug variant before the
// provisioning attempt is given up.
const slugSuffixAttempts = 10

// Service manages brokerage provisioning and lookup.
type Service struct {
	store Store
}

// NewService constructs a tenant [Service].
func NewService(store Store) *Service {
	return &Service{store: store}
}

/*
Provision creates a new brokerage with a unique slug derived from its name.

A taken slug gets a numeric suffix: "coastal-realty", "coastal-realty-2",
and so on. Names that reduce to an empty slug are rejected.
*/
func (service *Service) Provision(ctx context.Context, name string) (*Brokerage, error) {
	base := slug.From(name)
	if base == "" {
		return nil, apperr.ValidationError("Brokerage name must contain letters or digits")
	}

	chosen := ""
	for attempt := 1; attempt <= slugSuffixAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		if _, err := service.store.FindBySlug(ctx, candidate); err != nil {
			chosen = candidate
			break
		}
	}
	if chosen == "" {
		return nil, apperr.Conflict("Brokerage name is already in use")
	}

	brokerage := &Brokerage{
		ID:   uuid.New(),
		Name: name,
		Slug: chosen,
	}
	if err := service.store.Create(ctx, brokerage); err != nil {
		return nil, fmt.Errorf("tenant_provision_failed: %w", err)
	}
	return brokerage, nil
}

// Find resolves a brokerage by id.
func (service *Service) Find(ctx context.Context, id string) (*Brokerage, error) {
	return service.store.FindByID(ctx, id)
}

// FindBySlug resolves a brokerage by slug.
func (service *Service) FindBySlug(ctx context.Context, slugValue string) (*Brokerage, error) {
	return service.store.FindBySlug(ctx, slugValue)
}
