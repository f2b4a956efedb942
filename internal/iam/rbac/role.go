// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package rbac implements role management and permission aggregation.

Roles form a forest per tenant: each role may reference a parent role by id
(a back-reference, not ownership). Two models hang off this structure and are
evaluated independently:

  - The bitmask model (canonical): each role carries permission grants; a
    user's effective permission map is the strict union of the grants of the
    roles the user directly holds.
  - The hierarchical name check (coarse, additional): a required role name
    matches if it appears anywhere in the ancestor chain of any held role.

Cycle rejection happens at role create/update time, and every ancestor walk
is additionally depth-bounded so that pre-existing bad data can never loop
the resolver.
*/
package rbac

import (
	"time"

	"github.com/propelacrm/propela/internal/iam/perm"
)

// MaxHierarchyDepth bounds every ancestor walk. A legitimate role tree is
// never this deep; anything beyond it is treated as corrupt data.
const MaxHierarchyDepth = 32

// OwnerRoleName is the founding role created when a brokerage is provisioned.
// It carries every action on every resource.
const OwnerRoleName = "broker-owner"

// # Domain Entities

// Role is a named permission container inside a tenant's role forest.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Depth       int       `json:"depth"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Grant attaches one action bit on one resourceCode to a role.
type Grant struct {
	RoleID       string      `json:"role_id"`
	ResourceCode string      `json:"resource_code"`
	Action       perm.Action `json:"action"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Assignment is the user<->role join. AssignedBy records the administrator
// who performed the assignment for audit purposes.
type Assignment struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}
