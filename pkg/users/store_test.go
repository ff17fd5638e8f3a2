package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/database"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *rbac.Store, *sql.DB) {
	t.Helper()
	db := database.OpenTestDB(t)
	return NewStore(db), rbac.NewStore(db), db
}

func TestStore_CreateAndGet(t *testing.T) {
	store, roles, _ := setupStore(t)
	ctx := context.Background()

	viewer, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "viewer"})
	require.NoError(t, err)

	user := &User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", RoleID: &viewer.ID}
	require.NoError(t, store.Create(ctx, user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, "viewer", user.RoleName)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, "viewer", got.RoleName)
	require.NotNil(t, got.RoleID)
	assert.Equal(t, viewer.ID, *got.RoleID)

	_, err = store.GetByID(ctx, 999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_CreateDuplicateUsername(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}))
	err := store.Create(ctx, &User{Username: "alice", Email: "b@example.com", PasswordHash: "h"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestStore_CreateUnknownRole(t *testing.T) {
	store, _, _ := setupStore(t)
	missing := int64(42)

	err := store.Create(context.Background(), &User{Username: "alice", Email: "a@example.com", PasswordHash: "h", RoleID: &missing})
	assert.True(t, apperrors.IsValidation(err))
}

func TestStore_CreateRoleLookupFailureInsertsNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM roles").WithArgs(int64(7)).WillReturnError(errors.New("connection reset"))

	roleID := int64(7)
	user := &User{Username: "alice", Email: "a@example.com", PasswordHash: "h", RoleID: &roleID}
	err = NewStore(db).Create(context.Background(), user)
	require.Error(t, err)
	assert.False(t, apperrors.IsConflict(err))
	assert.Zero(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateResolvesRoleBeforeInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM roles").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("viewer"))
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	roleID := int64(7)
	user := &User{Username: "alice", Email: "a@example.com", PasswordHash: "h", RoleID: &roleID}
	require.NoError(t, NewStore(db).Create(context.Background(), user))
	assert.Equal(t, int64(3), user.ID)
	assert.Equal(t, "viewer", user.RoleName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateAndSetRole(t *testing.T) {
	store, roles, _ := setupStore(t)
	ctx := context.Background()

	editor, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "editor"})
	require.NoError(t, err)

	user := &User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}
	require.NoError(t, store.Create(ctx, user))
	assert.Empty(t, user.RoleName)

	user.Email = "alice@example.com"
	require.NoError(t, store.Update(ctx, user))

	require.NoError(t, store.SetRole(ctx, user.ID, editor.ID))
	got, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "editor", got.RoleName)

	assert.True(t, apperrors.IsNotFound(store.SetRole(ctx, 999, editor.ID)))
	assert.True(t, apperrors.IsValidation(store.SetRole(ctx, user.ID, 999)))
}

func TestStore_ListAndDelete(t *testing.T) {
	store, _, db := setupStore(t)
	ctx := context.Background()

	alice := &User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}
	bob := &User{Username: "bobby", Email: "b@example.com", PasswordHash: "h"}
	require.NoError(t, store.Create(ctx, alice))
	require.NoError(t, store.Create(ctx, bob))

	users, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (title, path, content_type, size, user_id) VALUES ($1, $2, $3, $4, $5)",
		"doc", "1/key", "application/pdf", 10, alice.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, alice.ID), ErrUserHasDocuments)
	require.NoError(t, store.Delete(ctx, bob.ID))
	assert.True(t, apperrors.IsNotFound(store.Delete(ctx, bob.ID)))
}
