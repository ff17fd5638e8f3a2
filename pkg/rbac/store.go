package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/database"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store persists the permission catalog and roles
type Store struct {
	db        *sql.DB
	protected map[string]bool
}

// NewStore creates a new RBAC store. Protected roles can be neither renamed nor deleted.
func NewStore(db *sql.DB, protectedRoles ...string) *Store {
	protected := make(map[string]bool, len(protectedRoles))
	for _, name := range protectedRoles {
		protected[name] = true
	}
	return &Store{db: db, protected: protected}
}

// CreatePermission adds a permission to the catalog
func (s *Store) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*Permission, error) {
	name, err := validateName("permission", req.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	perm := &Permission{Name: name, Description: req.Description, CreatedAt: now, UpdatedAt: now}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO permissions (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, perm.Name, perm.Description, perm.CreatedAt, perm.UpdatedAt).Scan(&perm.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("permission %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}
	return perm, nil
}

// GetPermission retrieves a permission by ID
func (s *Store) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`, id))
}

// GetPermissionByName retrieves a permission by its unique name
func (s *Store) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM permissions
		WHERE name = $1
	`, name))
}

// ListPermissions lists the whole catalog ordered by name
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM permissions
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpdatePermission renames or re-describes a permission
func (s *Store) UpdatePermission(ctx context.Context, id int64, req UpdatePermissionRequest) (*Permission, error) {
	perm, err := s.GetPermission(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name, err := validateName("permission", *req.Name)
		if err != nil {
			return nil, err
		}
		perm.Name = name
	}
	if req.Description != nil {
		perm.Description = *req.Description
	}

	perm.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE permissions
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`, perm.Name, perm.Description, perm.UpdatedAt, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("permission %q already exists", perm.Name)
		}
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}
	if err := requireAffected(res, "permission"); err != nil {
		return nil, err
	}
	return perm, nil
}

// DeletePermission removes a permission that no role grants.
// Deleting a permission still held by a role fails with ErrPermissionInUse.
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1", id,
		).Scan(&refs); err != nil {
			return fmt.Errorf("failed to count permission references: %w", err)
		}
		if refs > 0 {
			return ErrPermissionInUse
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM permissions WHERE id = $1", id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrPermissionInUse
			}
			return fmt.Errorf("failed to delete permission: %w", err)
		}
		return requireAffected(res, "permission")
	})
}

// CreateRole creates a role and its initial permission set atomically
func (s *Store) CreateRole(ctx context.Context, req CreateRoleRequest) (*Role, error) {
	name, err := validateName("role", req.Name)
	if err != nil {
		return nil, err
	}

	var roleID int64
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx,
			"INSERT INTO roles (name, created_at, updated_at) VALUES ($1, $2, $3) RETURNING id", name, now, now,
		).Scan(&roleID); err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Conflict("role %q already exists", name)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}
		return insertRolePermissions(ctx, tx, roleID, req.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, roleID)
}

// GetRole retrieves a role and its permissions by ID
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.getRole(ctx, "WHERE id = $1", id)
}

// GetRoleByName retrieves a role and its permissions by name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRole(ctx, "WHERE name = $1", name)
}

func (s *Store) getRole(ctx context.Context, where string, arg interface{}) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM roles "+where, arg,
	).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("role")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	byRole, err := loadRolePermissions(ctx, s.db, &role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = byRole[role.ID]
	if role.Permissions == nil {
		role.Permissions = []Permission{}
	}
	return &role, nil
}

// ListRoles lists all roles with their permissions
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := func() ([]Role, error) {
		rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, updated_at FROM roles ORDER BY name ASC")
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}
		defer rows.Close()

		roles := []Role{}
		for rows.Next() {
			var role Role
			if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan role: %w", err)
			}
			roles = append(roles, role)
		}
		return roles, rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	byRole, err := loadRolePermissions(ctx, s.db, nil)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = byRole[roles[i].ID]
		if roles[i].Permissions == nil {
			roles[i].Permissions = []Permission{}
		}
	}
	return roles, nil
}

// UpdateRole renames a role and/or replaces its permission set in one transaction
func (s *Store) UpdateRole(ctx context.Context, id int64, req UpdateRoleRequest) (*Role, error) {
	now := time.Now().UTC()
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := roleName(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name, err := validateName("role", *req.Name)
			if err != nil {
				return err
			}
			if name != current && s.protected[current] {
				return ErrProtectedRole
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE roles SET name = $1, updated_at = $2 WHERE id = $3", name, now, id,
			); err != nil {
				if database.IsUniqueViolation(err) {
					return apperrors.Conflict("role %q already exists", name)
				}
				return fmt.Errorf("failed to rename role: %w", err)
			}
		}

		if req.PermissionIDs != nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", id); err != nil {
				return fmt.Errorf("failed to clear role permissions: %w", err)
			}
			if err := insertRolePermissions(ctx, tx, id, *req.PermissionIDs); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE roles SET updated_at = $1 WHERE id = $2", now, id,
			); err != nil {
				return fmt.Errorf("failed to touch role: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes a role nobody holds. Its permission links go with it.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		name, err := roleName(ctx, tx, id)
		if err != nil {
			return err
		}
		if s.protected[name] {
			return ErrProtectedRole
		}

		var holders int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE role_id = $1", id,
		).Scan(&holders); err != nil {
			return fmt.Errorf("failed to count role holders: %w", err)
		}
		if holders > 0 {
			return ErrRoleInUse
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete role permissions: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return requireAffected(res, "role")
	})
}

// EffectivePermissions loads a user, their role and the role's permissions in one query.
// It returns ErrSubjectNotFound for an unknown user and ErrNoRole for a user without a role.
func (s *Store) EffectivePermissions(ctx context.Context, userID int64) (*Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, r.id, r.name, p.name
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE u.id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	var grant *Grant
	for rows.Next() {
		var (
			uid      int64
			roleID   sql.NullInt64
			roleName sql.NullString
			permName sql.NullString
		)
		if err := rows.Scan(&uid, &roleID, &roleName, &permName); err != nil {
			return nil, fmt.Errorf("failed to scan permissions: %w", err)
		}
		if grant == nil {
			grant = &Grant{UserID: uid, Permissions: make(map[string]struct{})}
			if roleID.Valid {
				grant.RoleID = roleID.Int64
				grant.RoleName = roleName.String
			}
		}
		if permName.Valid {
			grant.Permissions[permName.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	if grant == nil {
		return nil, ErrSubjectNotFound
	}
	if grant.RoleID == 0 {
		return nil, ErrNoRole
	}
	return grant, nil
}

func scanPermission(row *sql.Row) (*Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("permission")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

func roleName(ctx context.Context, q querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, "SELECT name FROM roles WHERE id = $1", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("role")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return name, nil
}

// insertRolePermissions links permissions to a role, rejecting IDs missing from the catalog
func insertRolePermissions(ctx context.Context, q querier, roleID int64, permissionIDs []int64) error {
	for _, permID := range dedupeIDs(permissionIDs) {
		res, err := q.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE id = $2
		`, roleID, permID)
		if err != nil {
			return fmt.Errorf("failed to assign permission %d: %w", permID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperrors.Validation("unknown permission id %d", permID)
		}
	}
	return nil
}

// loadRolePermissions maps role ID to permissions, for one role or all when roleID is nil
func loadRolePermissions(ctx context.Context, q querier, roleID *int64) (map[int64][]Permission, error) {
	query := `
		SELECT rp.role_id, p.id, p.name, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
	`
	var args []interface{}
	if roleID != nil {
		query += " WHERE rp.role_id = $1"
		args = append(args, *roleID)
	}
	query += " ORDER BY p.name ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	byRole := make(map[int64][]Permission)
	for rows.Next() {
		var rid int64
		var p Permission
		if err := rows.Scan(&rid, &p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		byRole[rid] = append(byRole[rid], p)
	}
	return byRole, rows.Err()
}

func requireAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(entity)
	}
	return nil
}
