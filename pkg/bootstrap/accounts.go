package bootstrap

import (
	"context"
	"fmt"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/users"
)

// AdminRoleName is the built-in role holding every permission
const AdminRoleName = "admin"

// UserStore is the subset of users.Store used by the account helpers
type UserStore interface {
	Create(ctx context.Context, user *users.User) error
	GetByUsername(ctx context.Context, username string) (*users.User, error)
	SetRole(ctx context.Context, userID, roleID int64) error
}

// RoleLookup resolves roles by name
type RoleLookup interface {
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
}

// AssignRole gives the named user the named role
func AssignRole(ctx context.Context, accounts UserStore, roles RoleLookup, username, roleName string) (*users.User, error) {
	user, err := accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	role, err := roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("role %q: %w", roleName, err)
	}
	if err := accounts.SetRole(ctx, user.ID, role.ID); err != nil {
		return nil, err
	}
	user.RoleID = &role.ID
	user.RoleName = role.Name
	return user, nil
}

// CreateAdmin creates a user holding the admin role. The seed catalog must have been applied.
func CreateAdmin(ctx context.Context, accounts UserStore, roles RoleLookup, hasher users.PasswordHasher, username, email, password string) (*users.User, error) {
	role, err := roles.GetRoleByName(ctx, AdminRoleName)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.Configuration("role %q does not exist; run seed first", AdminRoleName)
	}
	if err != nil {
		return nil, err
	}

	user := &users.User{RoleID: &role.ID}
	if user.Username, err = users.NormalizeUsername(username); err != nil {
		return nil, err
	}
	if user.Email, err = users.NormalizeEmail(email); err != nil {
		return nil, err
	}
	if err := users.ValidatePassword(password); err != nil {
		return nil, err
	}
	if user.PasswordHash, err = hasher.Hash(ctx, password); err != nil {
		return nil, err
	}
	if err := accounts.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
