package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
)

const (
	// MinUsernameLength is the shortest accepted username
	MinUsernameLength = 4
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 6

	maxUsernameLength = 255
	maxEmailLength    = 320
)

// ErrUserHasDocuments is returned when deleting a user who still owns documents
var ErrUserHasDocuments = fmt.Errorf("%w: user still owns documents", apperrors.ErrConflict)

// User is a stored account. The password hash never leaves the process.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       *int64    `json:"role_id,omitempty"`
	RoleName     string    `json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserRequest is the admin payload for creating a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   *int64 `json:"role_id,omitempty"`
}

// UpdateUserRequest changes a user. Nil fields are left as they are.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	RoleID   *int64  `json:"role_id,omitempty"`
}

// PasswordHasher turns a plaintext password into a storable hash
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
}

// NormalizeUsername trims and validates a username
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < MinUsernameLength {
		return "", apperrors.Validation("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > maxUsernameLength {
		return "", apperrors.Validation("username must be at most %d characters", maxUsernameLength)
	}
	return username, nil
}

// NormalizeEmail trims and validates an email address
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperrors.Validation("email is required")
	}
	if len(email) > maxEmailLength {
		return "", apperrors.Validation("email must be at most %d characters", maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validation("email must be a valid address")
	}
	return email, nil
}

// ValidatePassword checks password length. The password is never echoed back.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.Validation("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
