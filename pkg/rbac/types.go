package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
)

// Permission names known to the policy table
const (
	PermDocumentsCreate = "documents.create"
	PermDocumentsView   = "documents.view"
	PermDocumentsEdit   = "documents.edit"
	PermDocumentsDelete = "documents.delete"

	PermUsersCreate = "users.create"
	PermUsersView   = "users.view"
	PermUsersEdit   = "users.edit"
	PermUsersDelete = "users.delete"

	PermRolesCreate = "roles.create"
	PermRolesView   = "roles.view"
	PermRolesEdit   = "roles.edit"
	PermRolesDelete = "roles.delete"

	PermPermissionsManage = "permissions.manage"
)

const maxNameLength = 255

var (
	// ErrPermissionInUse is returned when deleting a permission that a role still grants
	ErrPermissionInUse = fmt.Errorf("%w: permission is assigned to one or more roles", apperrors.ErrConflict)

	// ErrRoleInUse is returned when deleting a role that users still hold
	ErrRoleInUse = fmt.Errorf("%w: role is assigned to one or more users", apperrors.ErrConflict)

	// ErrProtectedRole is returned when deleting or renaming a role the service depends on
	ErrProtectedRole = fmt.Errorf("%w: role is protected", apperrors.ErrConflict)

	// ErrSubjectNotFound is returned when resolving permissions for an unknown user
	ErrSubjectNotFound = fmt.Errorf("%w: user", apperrors.ErrNotFound)

	// ErrNoRole is returned when a user has no role and therefore no permissions
	ErrNoRole = errors.New("user has no role")
)

// Permission is a named capability in the catalog
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named bundle of permissions
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionNames returns the names of the role's permissions, sorted
func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// CreateRoleRequest creates a role with an initial permission set
type CreateRoleRequest struct {
	Name          string  `json:"name"`
	PermissionIDs []int64 `json:"permissions"`
}

// UpdateRoleRequest changes a role. A non-nil PermissionIDs replaces the whole set.
type UpdateRoleRequest struct {
	Name          *string  `json:"name,omitempty"`
	PermissionIDs *[]int64 `json:"permissions,omitempty"`
}

// CreatePermissionRequest adds a permission to the catalog
type CreatePermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdatePermissionRequest changes a permission's name or description
type UpdatePermissionRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Grant is a user's effective permission set, resolved at request time
type Grant struct {
	UserID      int64
	RoleID      int64
	RoleName    string
	Permissions map[string]struct{}
}

// Has reports whether the grant contains the exact permission name
func (g *Grant) Has(name string) bool {
	_, ok := g.Permissions[name]
	return ok
}

// Missing returns the required names the grant does not contain, in input order
func (g *Grant) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !g.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// validateName checks a role or permission name
func validateName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("%s name is required", kind)
	}
	if len(name) > maxNameLength {
		return "", apperrors.Validation("%s name must be at most %d characters", kind, maxNameLength)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return "", apperrors.Validation("%s name must not contain whitespace", kind)
	}
	return name, nil
}

// dedupeIDs drops duplicate IDs while keeping first-seen order
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
