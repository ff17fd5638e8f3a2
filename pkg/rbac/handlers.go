package rbac

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
)

// Handlers provides HTTP handlers for roles and permissions
type Handlers struct {
	store       *Store
	guard       *Guard
	auditLogger audit.Logger
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, guard *Guard, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{
		store:       store,
		guard:       guard,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers role and permission routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Role management
	h.guard.Handle(router, http.MethodPost, "/roles", OpCreateRole, h.CreateRole)
	h.guard.Handle(router, http.MethodGet, "/roles", OpListRoles, h.ListRoles)
	h.guard.Handle(router, http.MethodGet, "/roles/{id}", OpGetRole, h.GetRole)
	h.guard.Handle(router, http.MethodPatch, "/roles/{id}", OpUpdateRole, h.UpdateRole)
	h.guard.Handle(router, http.MethodDelete, "/roles/{id}", OpDeleteRole, h.DeleteRole)

	// Permission catalog
	h.guard.Handle(router, http.MethodPost, "/permissions", OpCreatePermission, h.CreatePermission)
	h.guard.Handle(router, http.MethodGet, "/permissions", OpListPermissions, h.ListPermissions)
	h.guard.Handle(router, http.MethodGet, "/permissions/{id}", OpGetPermission, h.GetPermission)
	h.guard.Handle(router, http.MethodPatch, "/permissions/{id}", OpUpdatePermission, h.UpdatePermission)
	h.guard.Handle(router, http.MethodDelete, "/permissions/{id}", OpDeletePermission, h.DeletePermission)
}

// CreateRole creates a role with an initial permission set
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.store.CreateRole(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminRoleCreate, audit.ResourceTypeRole, role.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"name": role.Name, "permissions": role.PermissionNames()}},
		"role created")
	httputil.WriteCreated(w, role)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole returns one role with its permissions
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole renames a role and/or replaces its permission set
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	role, err := h.store.UpdateRole(r.Context(), id, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminRoleUpdate, audit.ResourceTypeRole, role.ID,
		&audit.ChangeDetails{
			Before: map[string]interface{}{"name": before.Name, "permissions": before.PermissionNames()},
			After:  map[string]interface{}{"name": role.Name, "permissions": role.PermissionNames()},
		}, "role updated")
	httputil.WriteSuccess(w, role)
}

// DeleteRole removes a role that no user holds
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminRoleDelete, audit.ResourceTypeRole, id, nil, "role deleted")
	httputil.WriteNoContent(w)
}

// CreatePermission adds a permission to the catalog
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req CreatePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.store.CreatePermission(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminPermissionCreate, audit.ResourceTypePermission, perm.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"name": perm.Name}}, "permission created")
	httputil.WriteCreated(w, perm)
}

// ListPermissions lists the permission catalog
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// GetPermission returns one permission
func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	perm, err := h.store.GetPermission(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// UpdatePermission renames or re-describes a permission
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdatePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.store.UpdatePermission(r.Context(), id, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminPermissionUpdate, audit.ResourceTypePermission, perm.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"name": perm.Name, "description": perm.Description}},
		"permission updated")
	httputil.WriteSuccess(w, perm)
}

// DeletePermission removes a permission no role grants
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeletePermission(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminPermissionDelete, audit.ResourceTypePermission, id, nil, "permission deleted")
	httputil.WriteNoContent(w)
}

func (h *Handlers) logMutation(ctx context.Context, eventType audit.EventType, resourceType audit.ResourceType, id int64, changes *audit.ChangeDetails, message string) {
	if err := h.auditLogger.LogDataMutation(ctx, eventType, nil, resourceType, strconv.FormatInt(id, 10), changes, message); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
	}
}
