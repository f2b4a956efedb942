// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/pkg/uuid"
)

// Service orchestrates role administration and permission resolution.
//
// # Review Process
//
// This service gates every authorization decision in the platform. Changes
// to aggregation, cycle validation, or cache invalidation must be reviewed
// by the security team.
type Service struct {
	store Store
	cache Cache
	log   *slog.Logger
}

// NewService constructs a new rbac [Service].
func NewService(store Store, cache Cache, log *slog.Logger) *Service {
	return &Service{store: store, cache: cache, log: log}
}

// # Hierarchy Resolution

/*
AncestorChain walks a role's parent links to the root, returning the ordered
chain starting with the role itself.

The walk is cycle-safe (visited set) and depth-bounded by
[MaxHierarchyDepth]. Hitting either guard means the stored forest is corrupt
and is reported as an error, never as an infinite loop.
*/
func (service *Service) AncestorChain(ctx context.Context, roleID string) ([]Role, error) {
	chain := make([]Role, 0, 4)
	visited := make(map[string]bool, 4)

	currentID := roleID
	for depth := 0; depth < MaxHierarchyDepth; depth++ {
		if visited[currentID] {
			return nil, fmt.Errorf("rbac: cycle detected in role hierarchy at %s", currentID)
		}
		visited[currentID] = true

		role, err := service.store.FindRole(ctx, currentID)
		if err != nil {
			return nil, err
		}

		chain = append(chain, *role)
		if role.ParentID == nil {
			return chain, nil
		}
		currentID = *role.ParentID
	}

	return nil, fmt.Errorf("rbac: role hierarchy exceeds max depth %d starting at %s", MaxHierarchyDepth, roleID)
}

/*
HasRole reports whether requiredName appears anywhere in the ancestor chain
of any role the user holds.

This is the coarse, name-based hierarchical check. It is independent of and
additional to the bitmask model: a route that declares both a role
requirement and a permission requirement must pass both.
*/
func (service *Service) HasRole(ctx context.Context, userID, requiredName string) (bool, error) {
	heldRoles, err := service.store.ListRolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, held := range heldRoles {
		chain, err := service.AncestorChain(ctx, held.ID)
		if err != nil {
			// A corrupt branch fails closed for that branch only.
			service.log.ErrorContext(ctx, "rbac_ancestor_walk_failed",
				slog.String("role_id", held.ID),
				slog.Any("error", err),
			)
			continue
		}
		for _, ancestor := range chain {
			if ancestor.Name == requiredName {
				return true, nil
			}
		}
	}

	return false, nil
}

// # Permission Aggregation

/*
PermissionMap resolves a user's effective permission map.

Aggregation is a strict union over the grants of the roles the user directly
holds: for every resourceCode, the effective mask is the OR of every granted
bit. The result is served read-through from the cache; a cache failure
degrades to a direct storage read.
*/
func (service *Service) PermissionMap(ctx context.Context, userID string) (perm.Map, error) {
	if cached, hit, err := service.cache.Get(ctx, userID); err == nil && hit {
		return cached, nil
	} else if err != nil {
		service.log.WarnContext(ctx, "rbac_cache_read_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	heldRoles, err := service.store.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac_list_user_roles_failed: %w", err)
	}

	roleIDs := make([]string, 0, len(heldRoles))
	for _, role := range heldRoles {
		roleIDs = append(roleIDs, role.ID)
	}

	aggregated := perm.Map{}
	if len(roleIDs) > 0 {
		grants, err := service.store.ListGrantsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("rbac_list_grants_failed: %w", err)
		}
		for _, grant := range grants {
			aggregated.Grant(grant.ResourceCode, grant.Action)
		}
	}

	// Write-back failures are logged, never surfaced: the map is correct.
	if err := service.cache.Set(ctx, userID, aggregated); err != nil {
		service.log.WarnContext(ctx, "rbac_cache_write_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	return aggregated, nil
}

/*
RoleNames returns the names of the roles the user holds, expanded through
the ancestor chain of each held role, for embedding into the access token's
rls claim.

Embedding the expanded set means a token-level role check is the same
hierarchical check [Service.HasRole] performs against storage, without a
per-request walk.
*/
func (service *Service) RoleNames(ctx context.Context, userID string) ([]string, error) {
	heldRoles, err := service.store.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac_list_user_roles_failed: %w", err)
	}

	seen := make(map[string]bool, len(heldRoles))
	names := make([]string, 0, len(heldRoles))
	for _, held := range heldRoles {
		chain, err := service.AncestorChain(ctx, held.ID)
		if err != nil {
			// A corrupt branch contributes nothing, same as HasRole.
			service.log.ErrorContext(ctx, "rbac_ancestor_walk_failed",
				slog.String("role_id", held.ID),
				slog.Any("error", err),
			)
			continue
		}
		for _, ancestor := range chain {
			if !seen[ancestor.Name] {
				seen[ancestor.Name] = true
				names = append(names, ancestor.Name)
			}
		}
	}
	return names, nil
}

// # Role Administration

// CreateRoleInput holds the data required to create a role.
type CreateRoleInput struct {
	TenantID    string
	Name        string
	Description string
	ParentID    *string
}

/*
CreateRole validates and persists a new role.

The parent reference (if any) must exist, belong to the same tenant, and sit
above [MaxHierarchyDepth]. Name uniqueness per tenant is enforced here with
a client-safe Conflict error.
*/
func (service *Service) CreateRole(ctx context.Context, input CreateRoleInput) (*Role, error) {
	if _, err := service.store.FindRoleByName(ctx, input.TenantID, input.Name); err == nil {
		return nil, apperr.Conflict("Role name is already in use")
	}

	depth := 0
	if input.ParentID != nil {
		parent, err := service.store.FindRole(ctx, *input.ParentID)
		if err != nil {
			return nil, apperr.NotFound("Parent role")
		}
		if parent.TenantID != input.TenantID {
			return nil, apperr.Unprocessable("Parent role belongs to a different tenant")
		}
		if parent.Depth+1 >= MaxHierarchyDepth {
			return nil, apperr.Unprocessable("Role hierarchy too deep")
		}
		depth = parent.Depth + 1
	}

	role := &Role{
		ID:          uuid.New(),
		TenantID:    input.TenantID,
		Name:        input.Name,
		Description: input.Description,
		ParentID:    input.ParentID,
		Depth:       depth,
	}

	if err := service.store.CreateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("rbac_create_role_failed: %w", err)
	}

	return role, nil
}

// UpdateRoleInput holds mutable role fields. Nil pointers leave a field untouched.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	// ParentID moves the role in the forest. An empty string detaches it
	// (makes it a root); nil leaves the parent unchanged.
	ParentID *string
}

/*
UpdateRole applies the input to an existing role.

Re-parenting re-runs cycle validation: the new parent's ancestor chain must
not contain the role being updated. Without this check a later
[AncestorChain] walk would only be saved by its depth bound.
*/
func (service *Service) UpdateRole(ctx context.Context, roleID string, input UpdateRoleInput) (*Role, error) {
	role, err := service.store.FindRole(ctx, roleID)
	if err != nil {
		return nil, apperr.NotFound("Role")
	}

	if input.Name != nil {
		role.Name = *input.Name
	}
	if input.Description != nil {
		role.Description = *input.Description
	}

	if input.ParentID != nil {
		if *input.ParentID == "" {
			role.ParentID = nil
			role.Depth = 0
		} else {
			parent, err := service.validateNewParent(ctx, role, *input.ParentID)
			if err != nil {
				return nil, err
			}
			newParentID := parent.ID
			role.ParentID = &newParentID
			role.Depth = parent.Depth + 1
		}
	}

	if err := service.store.UpdateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("rbac_update_role_failed: %w", err)
	}

	// Re-parenting changes nothing about direct grants, but name changes
	// affect hierarchical checks only at read time, so no invalidation is
	// needed for the bitmask cache here.
	return role, nil
}

// validateNewParent checks tenant scope, depth, and acyclicity of a proposed parent.
func (service *Service) validateNewParent(ctx context.Context, role *Role, parentID string) (*Role, error) {
	if parentID == role.ID {
		return nil, apperr.Unprocessable("A role cannot be its own parent")
	}

	parent, err := service.store.FindRole(ctx, parentID)
	if err != nil {
		return nil, apperr.NotFound("Parent role")
	}
	if parent.TenantID != role.TenantID {
		return nil, apperr.Unprocessable("Parent role belongs to a different tenant")
	}
	if parent.Depth+1 >= MaxHierarchyDepth {
		return nil, apperr.Unprocessable("Role hierarchy too deep")
	}

	// Walk up from the proposed parent; finding the role itself means the
	// re-parenting would close a cycle.
	chain, err := service.AncestorChain(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("rbac_parent_chain_failed: %w", err)
	}
	for _, ancestor := range chain {
		if ancestor.ID == role.ID {
			return nil, apperr.Conflict("Re-parenting would create a role hierarchy cycle")
		}
	}

	return parent, nil
}

// # Grants & Assignments

/*
GrantPermission attaches an action on a resourceCode to a role and
synchronously invalidates the cached permission map of every user holding it.
*/
func (service *Service) GrantPermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error {
	if _, err := perm.Bit(action); err != nil {
		return apperr.Unprocessable("Unknown action category")
	}
	if _, err := service.store.FindRole(ctx, roleID); err != nil {
		return apperr.NotFound("Role")
	}

	if err := service.store.GrantPermission(ctx, roleID, resourceCode, action); err != nil {
		return fmt.Errorf("rbac_grant_failed: %w", err)
	}

	service.invalidateRoleUsers(ctx, roleID)
	return nil
}

// RevokePermission removes an action grant from a role. Idempotent.
func (service *Service) RevokePermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error {
	if err := service.store.RevokePermission(ctx, roleID, resourceCode, action); err != nil {
		return fmt.Errorf("rbac_revoke_failed: %w", err)
	}

	service.invalidateRoleUsers(ctx, roleID)
	return nil
}

/*
AssignRole attaches a role to a user and invalidates the user's cached
permission map.
*/
func (service *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy string) error {
	if _, err := service.store.FindRole(ctx, roleID); err != nil {
		return apperr.NotFound("Role")
	}

	assignment := &Assignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now(),
	}
	if err := service.store.AssignRole(ctx, assignment); err != nil {
		return fmt.Errorf("rbac_assign_failed: %w", err)
	}

	service.invalidateUser(ctx, userID)
	return nil
}

/*
RemoveRole detaches a role from a user.

A user must always retain at least one role: removing the last one is
rejected with a client-safe error.
*/
func (service *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	count, err := service.store.CountRolesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("rbac_count_roles_failed: %w", err)
	}
	if count <= 1 {
		return apperr.Unprocessable("Cannot remove a user's last role")
	}

	if err := service.store.RemoveAssignment(ctx, userID, roleID); err != nil {
		return fmt.Errorf("rbac_remove_assignment_failed: %w", err)
	}

	service.invalidateUser(ctx, userID)
	return nil
}

/*
BootstrapOwner provisions a brand-new tenant's founding role and assigns it
to the founding user.

The role carries every action on every resource. Grants go straight to the
store: the user has no cached permission map yet, so no fanout is needed.
*/
func (service *Service) BootstrapOwner(ctx context.Context, tenantID, userID string) error {
	role, err := service.CreateRole(ctx, CreateRoleInput{
		TenantID:    tenantID,
		Name:        OwnerRoleName,
		Description: "Full control over the brokerage",
	})
	if err != nil {
		return err
	}

	resources := []string{
		perm.ResourceProperties,
		perm.ResourceDocuments,
		perm.ResourceTasks,
		perm.ResourceContacts,
		perm.ResourceStorage,
		perm.ResourceAdmin,
	}
	actions := []perm.Action{
		perm.ActionView,
		perm.ActionEdit,
		perm.ActionDelete,
		perm.ActionManage,
		perm.ActionShare,
		perm.ActionCommunicate,
	}
	for _, resource := range resources {
		for _, action := range actions {
			if err := service.store.GrantPermission(ctx, role.ID, resource, action); err != nil {
				return fmt.Errorf("rbac_bootstrap_grant_failed: %w", err)
			}
		}
	}

	assignment := &Assignment{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedBy: userID,
		AssignedAt: time.Now(),
	}
	if err := service.store.AssignRole(ctx, assignment); err != nil {
		return fmt.Errorf("rbac_bootstrap_assign_failed: %w", err)
	}

	service.invalidateUser(ctx, userID)
	return nil
}

// ListRoles returns every role of a tenant.
func (service *Service) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	roles, err := service.store.ListRolesForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("rbac_list_roles_failed: %w", err)
	}
	return roles, nil
}

// ListGrants returns a role's grants.
func (service *Service) ListGrants(ctx context.Context, roleID string) ([]Grant, error) {
	grants, err := service.store.ListGrants(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac_list_grants_failed: %w", err)
	}
	return grants, nil
}

// # Cache Invalidation

// invalidateUser drops one user's cached permission map. Failures are logged
// only; the cache TTL bounds how long a stale map can survive.
func (service *Service) invalidateUser(ctx context.Context, userID string) {
	if err := service.cache.Invalidate(ctx, userID); err != nil {
		service.log.WarnContext(ctx, "rbac_cache_invalidate_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// invalidateRoleUsers fans invalidation out to every holder of a role.
func (service *Service) invalidateRoleUsers(ctx context.Context, roleID string) {
	userIDs, err := service.store.ListUsersWithRole(ctx, roleID)
	if err != nil {
		service.log.WarnContext(ctx, "rbac_role_fanout_failed",
			slog.String("role_id", roleID),
			slog.Any("error", err),
		)
		return
	}
	for _, userID := range userIDs {
		service.invalidateUser(ctx, userID)
	}
}
