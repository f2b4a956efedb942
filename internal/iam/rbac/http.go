// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/platform/middleware"
	requestutil "github.com/propelacrm/propela/internal/platform/request"
	"github.com/propelacrm/propela/internal/platform/respond"
	"github.com/propelacrm/propela/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the role-administration HTTP endpoints.
//
// Every route requires an authenticated caller holding MANAGE on the
// administration resource. Tenant scoping comes from the caller's token,
// never from the request body, so a handler can never mutate another
// brokerage's roles.
type Handler struct {
	rbacService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{rbacService: service}
}

// Routes returns a [chi.Router] configured with role-administration routes.
//
// # Endpoints
//   - GET    /roles                                   : List tenant roles.
//   - POST   /roles                                   : Create a role.
//   - PATCH  /roles/{roleID}                          : Rename or re-parent a role.
//   - GET    /roles/{roleID}/grants                   : List a role's grants.
//   - POST   /roles/{roleID}/grants                   : Grant an action.
//   - DELETE /roles/{roleID}/grants                   : Revoke an action.
//   - POST   /users/{userID}/roles                    : Assign a role to a user.
//   - DELETE /users/{userID}/roles/{roleID}           : Remove a role from a user.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Use(middleware.RequirePermission(perm.ResourceAdmin, perm.ActionManage))

	router.Get("/roles", handler.listRoles)
	router.Post("/roles", handler.createRole)
	router.Patch("/roles/{roleID}", handler.updateRole)
	router.Get("/roles/{roleID}/grants", handler.listGrants)
	router.Post("/roles/{roleID}/grants", handler.grantPermission)
	router.Delete("/roles/{roleID}/grants", handler.revokePermission)
	router.Post("/users/{userID}/roles", handler.assignRole)
	router.Delete("/users/{userID}/roles/{roleID}", handler.removeRole)

	return router
}

// # Request Payloads

type createRoleRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ParentID    *string `json:"parent_id"`
}

type grantRequest struct {
	ResourceCode string `json:"resource_code"`
	Action       string `json:"action"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

const (
	fieldName         = "name"
	fieldRoleID       = "role_id"
	fieldResourceCode = "resource_code"
	fieldAction       = "action"
)

/*
ListRoles returns every role of the caller's tenant.

GET /api/v1/admin/roles

Response:
  - 200: []Role: Tenant roles ordered by depth
*/
func (handler *Handler) listRoles(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	roles, err := handler.rbacService.ListRoles(request.Context(), claims.TenantID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, roles)
}

/*
CreateRole creates a role inside the caller's tenant.

POST /api/v1/admin/roles

Request:
  - Body: createRoleRequest (Name, Description, ParentID)

Response:
  - 201: Role: Created role
  - 409: ErrConflict: Role name already exists in the tenant
  - 422: ErrUnprocessable: Parent missing or hierarchy too deep
*/
func (handler *Handler) createRole(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldName, input.Name).MinLen(fieldName, input.Name, 2)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.rbacService.CreateRole(request.Context(), CreateRoleInput{
		TenantID:    claims.TenantID,
		Name:        input.Name,
		Description: input.Description,
		ParentID:    input.ParentID,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, role)
}

/*
UpdateRole renames, re-describes, or re-parents a role.

PATCH /api/v1/admin/roles/{roleID}

Request:
  - Body: updateRoleRequest (Name, Description, ParentID; all optional)

Response:
  - 200: Role: Updated role
  - 404: ErrNotFound: Unknown role
  - 422: ErrUnprocessable: Cycle, cross-tenant parent, or depth overflow
*/
func (handler *Handler) updateRole(writer http.ResponseWriter, request *http.Request) {
	roleID := chi.URLParam(request, "roleID")

	var input updateRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	role, err := handler.rbacService.UpdateRole(request.Context(), roleID, UpdateRoleInput{
		Name:        input.Name,
		Description: input.Description,
		ParentID:    input.ParentID,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

/*
ListGrants returns the permissions attached to one role.

GET /api/v1/admin/roles/{roleID}/grants

Response:
  - 200: []Grant: The role's direct grants
  - 404: ErrNotFound: Unknown role
*/
func (handler *Handler) listGrants(writer http.ResponseWriter, request *http.Request) {
	roleID := chi.URLParam(request, "roleID")

	grants, err := handler.rbacService.ListGrants(request.Context(), roleID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, grants)
}

/*
GrantPermission attaches an action on a resource to a role.

POST /api/v1/admin/roles/{roleID}/grants

Request:
  - Body: grantRequest (ResourceCode, Action)

Response:
  - 204: No Content: Grant recorded
  - 400: ErrInvalidJSON: Unknown action name
  - 404: ErrNotFound: Unknown role
*/
func (handler *Handler) grantPermission(writer http.ResponseWriter, request *http.Request) {
	roleID := chi.URLParam(request, "roleID")

	action, resourceCode, err := decodeGrant(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.rbacService.GrantPermission(request.Context(), roleID, resourceCode, action); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RevokePermission detaches an action on a resource from a role.

DELETE /api/v1/admin/roles/{roleID}/grants

Request:
  - Body: grantRequest (ResourceCode, Action)

Response:
  - 204: No Content: Grant removed (idempotent)
  - 400: ErrInvalidJSON: Unknown action name
*/
func (handler *Handler) revokePermission(writer http.ResponseWriter, request *http.Request) {
	roleID := chi.URLParam(request, "roleID")

	action, resourceCode, err := decodeGrant(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.rbacService.RevokePermission(request.Context(), roleID, resourceCode, action); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
AssignRole gives a user an additional role.

POST /api/v1/admin/users/{userID}/roles

Request:
  - Body: assignRoleRequest (RoleID)

Response:
  - 204: No Content: Role assigned (idempotent)
  - 404: ErrNotFound: Unknown role
*/
func (handler *Handler) assignRole(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	userID := chi.URLParam(request, "userID")

	var input assignRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldRoleID, input.RoleID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.rbacService.AssignRole(request.Context(), userID, input.RoleID, claims.UserID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RemoveRole takes a role away from a user.

DELETE /api/v1/admin/users/{userID}/roles/{roleID}

Response:
  - 204: No Content: Role removed
  - 422: ErrUnprocessable: Removal would leave the user without any role
*/
func (handler *Handler) removeRole(writer http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")
	roleID := chi.URLParam(request, "roleID")

	if err := handler.rbacService.RemoveRole(request.Context(), userID, roleID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// decodeGrant parses and validates the shared grant/revoke payload.
func decodeGrant(request *http.Request) (perm.Action, string, error) {
	var input grantRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return "", "", validate.ErrInvalidJSON
	}

	validator := &validate.Validator{}
	validator.Required(fieldResourceCode, input.ResourceCode)
	validator.Required(fieldAction, input.Action)
	if err := validator.Err(); err != nil {
		return "", "", err
	}

	action := perm.Action(input.Action)
	if _, err := perm.Required(action); err != nil {
		return "", "", validate.RequiredError(fieldAction, "is not a recognized action")
	}

	return action, input.ResourceCode, nil
}
