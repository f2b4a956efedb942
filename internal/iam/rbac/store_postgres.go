// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/dberr"
)

// PostgresStore implements [Store] using pgx against the iam schema.
//
// Storage-specific errors (pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types so callers never see driver details.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const roleColumns = "id, tenantid, name, description, parentid, depth, createdat, updatedat"

// CreateRole persists a new role row.
func (store *PostgresStore) CreateRole(ctx context.Context, role *Role) error {
	const query = `
		INSERT INTO iam.role (id, tenantid, name, description, parentid, depth, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	_, err := store.pool.Exec(ctx, query,
		role.ID,
		role.TenantID,
		role.Name,
		role.Description,
		role.ParentID,
		role.Depth,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_rbac_create_role_failed", err)
	}
	return nil
}

// UpdateRole persists name, description, parent, and depth changes.
func (store *PostgresStore) UpdateRole(ctx context.Context, role *Role) error {
	const query = `
		UPDATE iam.role
		SET name = $2, description = $3, parentid = $4, depth = $5, updatedat = $6
		WHERE id = $1`

	role.UpdatedAt = time.Now()
	_, err := store.pool.Exec(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		role.ParentID,
		role.Depth,
		role.UpdatedAt,
	)
	if err != nil {
		return dberr.Query("postgres_rbac_update_role_failed", err)
	}
	return nil
}

// FindRole resolves a role by primary key.
func (store *PostgresStore) FindRole(ctx context.Context, id string) (*Role, error) {
	const query = "SELECT " + roleColumns + " FROM iam.role WHERE id = $1"
	return store.scanRole(store.pool.QueryRow(ctx, query, id))
}

// FindRoleByName resolves a tenant's role by its unique name.
func (store *PostgresStore) FindRoleByName(ctx context.Context, tenantID, name string) (*Role, error) {
	const query = "SELECT " + roleColumns + " FROM iam.role WHERE tenantid = $1 AND name = $2"
	return store.scanRole(store.pool.QueryRow(ctx, query, tenantID, name))
}

// ListRolesForTenant returns every role of a tenant ordered by depth.
func (store *PostgresStore) ListRolesForTenant(ctx context.Context, tenantID string) ([]Role, error) {
	const query = "SELECT " + roleColumns + " FROM iam.role WHERE tenantid = $1 ORDER BY depth, name"

	rows, err := store.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, dberr.Query("postgres_rbac_list_tenant_roles_failed", err)
	}
	defer rows.Close()

	return collectRoles(rows)
}

// ListRolesForUser returns the roles a user directly holds.
func (store *PostgresStore) ListRolesForUser(ctx context.Context, userID string) ([]Role, error) {
	const query = `
		SELECT r.id, r.tenantid, r.name, r.description, r.parentid, r.depth, r.createdat, r.updatedat
		FROM iam.role r
		JOIN iam.user_role ur ON ur.roleid = r.id
		WHERE ur.userid = $1
		ORDER BY ur.assignedat`

	rows, err := store.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, dberr.Query("postgres_rbac_list_user_roles_failed", err)
	}
	defer rows.Close()

	return collectRoles(rows)
}

// CountRolesForUser returns how many roles a user holds.
func (store *PostgresStore) CountRolesForUser(ctx context.Context, userID string) (int, error) {
	const query = "SELECT COUNT(*) FROM iam.user_role WHERE userid = $1"

	var count int
	if err := store.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, dberr.Query("postgres_rbac_count_user_roles_failed", err)
	}
	return count, nil
}

// AssignRole persists a user-role assignment. Re-assigning is a no-op.
func (store *PostgresStore) AssignRole(ctx context.Context, assignment *Assignment) error {
	const query = `
		INSERT INTO iam.user_role (userid, roleid, assignedby, assignedat)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (userid, roleid) DO NOTHING`

	_, err := store.pool.Exec(ctx, query,
		assignment.UserID,
		assignment.RoleID,
		assignment.AssignedBy,
		assignment.AssignedAt,
	)
	if err != nil {
		return dberr.Query("postgres_rbac_assign_failed", err)
	}
	return nil
}

// RemoveAssignment deletes a user-role assignment. Idempotent.
func (store *PostgresStore) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	const query = "DELETE FROM iam.user_role WHERE userid = $1 AND roleid = $2"
	if _, err := store.pool.Exec(ctx, query, userID, roleID); err != nil {
		return dberr.Query("postgres_rbac_remove_assignment_failed", err)
	}
	return nil
}

// ListUsersWithRole returns the ids of all users holding the role.
func (store *PostgresStore) ListUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	const query = "SELECT userid FROM iam.user_role WHERE roleid = $1"

	rows, err := store.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, dberr.Query("postgres_rbac_list_role_users_failed", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, dberr.Query("postgres_rbac_scan_role_user_failed", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// GrantPermission attaches an action on a resourceCode to a role.
func (store *PostgresStore) GrantPermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error {
	const query = `
		INSERT INTO iam.role_grant (roleid, resourcecode, action, createdat)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (roleid, resourcecode, action) DO NOTHING`

	if _, err := store.pool.Exec(ctx, query, roleID, resourceCode, string(action), time.Now()); err != nil {
		return dberr.Query("postgres_rbac_grant_failed", err)
	}
	return nil
}

// RevokePermission detaches an action from a role. Idempotent.
func (store *PostgresStore) RevokePermission(ctx context.Context, roleID, resourceCode string, action perm.Action) error {
	const query = "DELETE FROM iam.role_grant WHERE roleid = $1 AND resourcecode = $2 AND action = $3"
	if _, err := store.pool.Exec(ctx, query, roleID, resourceCode, string(action)); err != nil {
		return dberr.Query("postgres_rbac_revoke_failed", err)
	}
	return nil
}

// ListGrants returns every grant attached to a role.
func (store *PostgresStore) ListGrants(ctx context.Context, roleID string) ([]Grant, error) {
	return store.ListGrantsForRoles(ctx, []string{roleID})
}

// ListGrantsForRoles returns the grants of all listed roles in one query.
func (store *PostgresStore) ListGrantsForRoles(ctx context.Context, roleIDs []string) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT roleid, resourcecode, action, createdat
		FROM iam.role_grant
		WHERE roleid = ANY($1)`

	rows, err := store.pool.Query(ctx, query, roleIDs)
	if err != nil {
		return nil, dberr.Query("postgres_rbac_list_grants_failed", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var grant Grant
		var action string
		if err := rows.Scan(&grant.RoleID, &grant.ResourceCode, &action, &grant.CreatedAt); err != nil {
			return nil, dberr.Query("postgres_rbac_scan_grant_failed", err)
		}
		grant.Action = perm.Action(action)
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// scanRole hydrates one role row, mapping pgx.ErrNoRows to NotFound.
func (store *PostgresStore) scanRole(row pgx.Row) (*Role, error) {
	role := &Role{}
	err := row.Scan(
		&role.ID,
		&role.TenantID,
		&role.Name,
		&role.Description,
		&role.ParentID,
		&role.Depth,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Role")
		}
		return nil, dberr.Query("postgres_rbac_scan_role_failed", err)
	}
	return role, nil
}

// collectRoles drains a role result set.
func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		err := rows.Scan(
			&role.ID,
			&role.TenantID,
			&role.Name,
			&role.Description,
			&role.ParentID,
			&role.Depth,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, dberr.Query("postgres_rbac_scan_role_failed", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
