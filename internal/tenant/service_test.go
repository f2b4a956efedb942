// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/platform/apperr"
)

type memoryStore struct {
	bySlug map[string]*Brokerage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{bySlug: make(map[string]*Brokerage)}
}

func (store *memoryStore) Create(_ context.Context, brokerage *Brokerage) error {
	copied := *brokerage
	store.bySlug[brokerage.Slug] = &copied
	return nil
}

func (store *memoryStore) FindByID(_ context.Context, id string) (*Brokerage, error) {
	for _, brokerage := range store.bySlug {
		if brokerage.ID == id {
			copied := *brokerage
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Brokerage")
}

func (store *memoryStore) FindBySlug(_ context.Context, slug string) (*Brokerage, error) {
	brokerage, ok := store.bySlug[slug]
	if !ok {
		return nil, apperr.NotFound("Brokerage")
	}
	copied := *brokerage
	return &copied, nil
}

func TestProvision_DerivesSlug(t *testing.T) {
	service := NewService(newMemoryStore())

	brokerage, err := service.Provision(context.Background(), "Atlântico Imobiliária & Co.")
	require.NoError(t, err)
	assert.Equal(t, "atlantico-imobiliaria-co", brokerage.Slug)
	assert.NotEmpty(t, brokerage.ID)
}

func TestProvision_SuffixesTakenSlug(t *testing.T) {
	ctx := context.Background()
	service := NewService(newMemoryStore())

	first, err := service.Provision(ctx, "Coastal Realty")
	require.NoError(t, err)
	assert.Equal(t, "coastal-realty", first.Slug)

	second, err := service.Provision(ctx, "Coastal Realty")
	require.NoError(t, err)
	assert.Equal(t, "coastal-realty-2", second.Slug)
}

func TestProvision_RejectsEmptySlug(t *testing.T) {
	service := NewService(newMemoryStore())

	_, err := service.Provision(context.Background(), "!!! ---")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}
