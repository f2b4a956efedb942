// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"context"

	"github.com/propelacrm/propela/internal/iam/perm"
)

// # Role Data Access

// Store defines the data access contract for roles, grants, and assignments.
type Store interface {
	// CreateRole persists a new role. The caller has already validated the
	// parent reference and computed Depth.
	CreateRole(ctx context.Context, role *Role) error

	// UpdateRole persists name/description/parent/depth changes.
	UpdateRole(ctx context.Context, role *Role) error

	// FindRole returns the role with the given id.
	FindRole(ctx context.Context, id string) (*Role, error)

	// FindRoleByName returns the tenant's role with the given name.
	FindRoleByName(ctx context.Context, tenantID, name string) (*Role, error)

	// ListRolesForTenant returns every role of a tenant.
	ListRolesForTenant(ctx context.Context, tenantID string) ([]Role, error)

	// ListRolesForUser returns the roles a user directly holds.
	ListRolesForUser(ctx context.Context, userID string) ([]Role, error)

	// CountRolesForUser returns how many roles a user holds.
	CountRolesForUser(ctx context.Context, userID string) (int, error)

	// AssignRole persists a user-role assignment.
	AssignRole(ctx context.Context, assignment *Assignment) error

	// RemoveAssignment deletes a user-role assignment.
	RemoveAssignment(ctx context.Context, userID, roleID string) error

	// ListUsersWithRole returns the ids of all users holding the role.
	// Used to fan out cache invalidation after a grant mutation.
	ListUsersWithRole(ctx context.Context, roleID string) ([]string, error)

	// GrantPermission attaches an action on a resourceCode to a role.
	// Granting an already-present permission is a no-op.
	GrantPermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error

	// RevokePermission detaches an action from a role. Idempotent.
	RevokePermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error

	// ListGrants returns every grant attached to a role.
	ListGrants(ctx context.Context, roleID string) ([]Grant, error)

	// ListGrantsForRoles returns the grants of all listed roles in one query.
	ListGrantsForRoles(ctx context.Context, roleIDs []string) ([]Grant, error)
}

// # Permission Cache

// Cache is the read-through permission-map cache injected into the resolver.
//
// Mutations of roles, grants, or assignments call Invalidate synchronously;
// the TTL only bounds staleness from missed invalidations.
type Cache interface {
	// Get returns the cached permission map for a user, with a hit flag.
	// A cache failure is returned as an error and treated as a miss by the
	// resolver, so the cache can never deny a request on its own.
	Get(ctx context.Context, userID string) (perm.Map, bool, error)

	// Set stores a user's permission map under the cache TTL.
	Set(ctx context.Context, userID string, permissions perm.Map) error

	// Invalidate removes a user's cached permission map.
	Invalidate(ctx context.Context, userID string) error
}
