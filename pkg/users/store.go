package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/database"
)

const selectUser = `
	SELECT u.id, u.username, u.email, u.password_hash, u.role_id, COALESCE(r.name, ''), u.created_at, u.updated_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
`

// Store persists user accounts
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a user whose password is already hashed.
// It fills in the ID, timestamps and role name. The role is resolved before
// the insert so a committed row is never reported as a failure.
func (s *Store) Create(ctx context.Context, user *User) error {
	var roleName string
	if user.RoleID != nil {
		name, err := s.roleName(ctx, *user.RoleID)
		if apperrors.IsNotFound(err) {
			return apperrors.Validation("unknown role")
		}
		if err != nil {
			return err
		}
		roleName = name
	}

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Username, user.Email, user.PasswordHash, user.RoleID, now, now).Scan(&user.ID)
	if err != nil {
		return mapWriteError(err, user.Username)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	user.RoleName = roleName
	return nil
}

// GetByID retrieves a user with their role name
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE u.id = $1", id))
}

// GetByUsername retrieves a user with their role name in a single read
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE u.username = $1", username))
}

// List returns all users ordered by ID
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+" ORDER BY u.id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// Update writes the mutable fields of user back to the store
func (s *Store) Update(ctx context.Context, user *User) error {
	var roleName string
	if user.RoleID != nil {
		name, err := s.roleName(ctx, *user.RoleID)
		if apperrors.IsNotFound(err) {
			return apperrors.Validation("unknown role")
		}
		if err != nil {
			return err
		}
		roleName = name
	}

	user.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, role_id = $4, updated_at = $5
		WHERE id = $6
	`, user.Username, user.Email, user.PasswordHash, user.RoleID, user.UpdatedAt, user.ID)
	if err != nil {
		return mapWriteError(err, user.Username)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("user")
	}
	user.RoleName = roleName
	return nil
}

// SetRole assigns a role to a user
func (s *Store) SetRole(ctx context.Context, userID, roleID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET role_id = $1, updated_at = $2 WHERE id = $3",
		roleID, time.Now().UTC(), userID,
	)
	if err != nil {
		return mapWriteError(err, "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}

// Delete removes a user who owns no documents
func (s *Store) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var owned int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM documents WHERE user_id = $1", id,
		).Scan(&owned); err != nil {
			return fmt.Errorf("failed to count user documents: %w", err)
		}
		if owned > 0 {
			return ErrUserHasDocuments
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrUserHasDocuments
			}
			return fmt.Errorf("failed to delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return apperrors.NotFound("user")
		}
		return nil
	})
}

func (s *Store) roleName(ctx context.Context, roleID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM roles WHERE id = $1", roleID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("role")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role name: %w", err)
	}
	return name, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (*User, error) {
	var (
		user   User
		roleID sql.NullInt64
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&roleID, &user.RoleName, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if roleID.Valid {
		id := roleID.Int64
		user.RoleID = &id
	}
	return &user, nil
}

func mapWriteError(err error, username string) error {
	switch {
	case database.IsUniqueViolation(err):
		return apperrors.Conflict("username %q is already taken", username)
	case database.IsForeignKeyViolation(err):
		return apperrors.Validation("unknown role")
	default:
		return fmt.Errorf("failed to write user: %w", err)
	}
}
