package users

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
)

// RoleLookup resolves role names
type RoleLookup interface {
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
}

// Handlers provides the user administration endpoints
type Handlers struct {
	store       *Store
	roles       RoleLookup
	defaultRole string
	hasher      PasswordHasher
	guard       *rbac.Guard
	auditLogger audit.Logger
}

// NewHandlers creates new user handlers. Users created without a role_id
// get defaultRole.
func NewHandlers(store *Store, roles RoleLookup, defaultRole string, hasher PasswordHasher, guard *rbac.Guard, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{
		store:       store,
		roles:       roles,
		defaultRole: defaultRole,
		hasher:      hasher,
		guard:       guard,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers user routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	h.guard.Handle(router, http.MethodPost, "/users", rbac.OpCreateUser, h.CreateUser)
	h.guard.Handle(router, http.MethodGet, "/users", rbac.OpListUsers, h.ListUsers)
	h.guard.Handle(router, http.MethodGet, "/users/{id:[0-9]+}", rbac.OpGetUser, h.GetUser)
	h.guard.Handle(router, http.MethodPatch, "/users/{id:[0-9]+}", rbac.OpUpdateUser, h.UpdateUser)
	h.guard.Handle(router, http.MethodDelete, "/users/{id:[0-9]+}", rbac.OpDeleteUser, h.DeleteUser)
}

// CreateUser creates an account with the requested role or the default one
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user := &User{RoleID: req.RoleID}
	var err error
	if user.Username, err = NormalizeUsername(req.Username); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if user.Email, err = NormalizeEmail(req.Email); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := ValidatePassword(req.Password); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if user.RoleID == nil {
		roleID, err := h.defaultRoleID(r.Context())
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		user.RoleID = &roleID
	}
	if user.PasswordHash, err = h.hasher.Hash(r.Context(), req.Password); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.store.Create(r.Context(), user); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminUserCreate, user.ID,
		&audit.ChangeDetails{After: userFields(user)}, "user created")
	httputil.WriteCreated(w, user)
}

func (h *Handlers) defaultRoleID(ctx context.Context) (int64, error) {
	role, err := h.roles.GetRoleByName(ctx, h.defaultRole)
	if apperrors.IsNotFound(err) {
		return 0, apperrors.Configuration("default role %q does not exist", h.defaultRole)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve default role: %w", err)
	}
	return role.ID, nil
}

// ListUsers lists all users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser returns one user
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateUser changes a user's fields. A new password is re-hashed.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	before := userFields(user)

	if req.Username != nil {
		if user.Username, err = NormalizeUsername(*req.Username); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	}
	if req.Email != nil {
		if user.Email, err = NormalizeEmail(*req.Email); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	}
	if req.Password != nil {
		if err := ValidatePassword(*req.Password); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		if user.PasswordHash, err = h.hasher.Hash(r.Context(), *req.Password); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	}
	if req.RoleID != nil {
		user.RoleID = req.RoleID
	}

	if err := h.store.Update(r.Context(), user); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	after := userFields(user)
	if req.Password != nil {
		after["password"] = "changed"
	}
	h.logMutation(r.Context(), audit.EventTypeAdminUserUpdate, user.ID,
		&audit.ChangeDetails{Before: before, After: after}, "user updated")
	httputil.WriteSuccess(w, user)
}

// DeleteUser removes a user who owns no documents
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeAdminUserDelete, id, nil, "user deleted")
	httputil.WriteNoContent(w)
}

func (h *Handlers) logMutation(ctx context.Context, eventType audit.EventType, id int64, changes *audit.ChangeDetails, message string) {
	if err := h.auditLogger.LogDataMutation(ctx, eventType, nil, audit.ResourceTypeUser, strconv.FormatInt(id, 10), changes, message); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
	}
}

func userFields(u *User) map[string]interface{} {
	fields := map[string]interface{}{
		"username": u.Username,
		"email":    u.Email,
	}
	if u.RoleID != nil {
		fields["role_id"] = *u.RoleID
	}
	return fields
}
