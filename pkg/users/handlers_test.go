package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixHasher struct{ calls int }

func (p *prefixHasher) Hash(ctx context.Context, password string) (string, error) {
	p.calls++
	return "hashed:" + password, nil
}

type userFixture struct {
	router   *mux.Router
	store    *Store
	hasher   *prefixHasher
	adminID  int64
	roleID   int64
	viewerID int64
}

func newUserFixture(t *testing.T) *userFixture {
	return newUserFixtureWithDefault(t, "viewer")
}

// newUserFixtureWithDefault seeds an admin role and a viewer role; defaultRole
// is what CreateUser falls back to.
func newUserFixtureWithDefault(t *testing.T, defaultRole string) *userFixture {
	t.Helper()
	store, roles, _ := setupStore(t)
	ctx := context.Background()

	viewer, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "viewer"})
	require.NoError(t, err)

	var ids []int64
	for _, name := range []string{rbac.PermUsersCreate, rbac.PermUsersView, rbac.PermUsersEdit, rbac.PermUsersDelete} {
		p, err := roles.CreatePermission(ctx, rbac.CreatePermissionRequest{Name: name})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	admin, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "admin", PermissionIDs: ids})
	require.NoError(t, err)

	adminUser := &User{Username: "admin", Email: "admin@example.com", PasswordHash: "h", RoleID: &admin.ID}
	require.NoError(t, store.Create(ctx, adminUser))

	f := &userFixture{
		router:   mux.NewRouter(),
		store:    store,
		hasher:   &prefixHasher{},
		adminID:  adminUser.ID,
		roleID:   admin.ID,
		viewerID: viewer.ID,
	}
	guard := rbac.NewGuard(roles, rbac.DefaultPolicy())
	NewHandlers(store, roles, defaultRole, f.hasher, guard, nil).RegisterRoutes(f.router)
	return f
}

func (f *userFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(contextkeys.WithIdentity(req.Context(), contextkeys.Identity{UserID: f.adminID, Username: "admin"}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_CreateUser(t *testing.T) {
	f := newUserFixture(t)

	rec := f.do(t, http.MethodPost, "/users", map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret1",
		"role_id":  f.roleID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret1")
	assert.NotContains(t, rec.Body.String(), "hashed:")

	var created User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "admin", created.RoleName)

	stored, err := f.store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hashed:secret1", stored.PasswordHash)
}

func TestHandlers_CreateUserDefaultsToViewer(t *testing.T) {
	f := newUserFixture(t)

	rec := f.do(t, http.MethodPost, "/users", map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "viewer", created.RoleName)
	require.NotNil(t, created.RoleID)
	assert.Equal(t, f.viewerID, *created.RoleID)

	stored, err := f.store.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "viewer", stored.RoleName)
}

func TestHandlers_CreateUserMissingDefaultRole(t *testing.T) {
	f := newUserFixtureWithDefault(t, "reader")

	rec := f.do(t, http.MethodPost, "/users", map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, f.hasher.calls)

	_, err := f.store.GetByUsername(context.Background(), "alice")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHandlers_CreateUserValidation(t *testing.T) {
	f := newUserFixture(t)

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
	}{
		{"short username", map[string]interface{}{"username": "abc", "email": "a@example.com", "password": "secret"}, http.StatusBadRequest},
		{"bad email", map[string]interface{}{"username": "alice", "email": "nope", "password": "secret"}, http.StatusBadRequest},
		{"short password", map[string]interface{}{"username": "alice", "email": "a@example.com", "password": "12345"}, http.StatusBadRequest},
		{"duplicate", map[string]interface{}{"username": "admin", "email": "a@example.com", "password": "secret"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/users", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 1, f.hasher.calls)
}

func TestHandlers_UpdateUserRehashesPassword(t *testing.T) {
	f := newUserFixture(t)

	user := &User{Username: "alice", Email: "a@example.com", PasswordHash: "hashed:old"}
	require.NoError(t, f.store.Create(context.Background(), user))

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/users/%d", user.ID), map[string]interface{}{
		"password": "newsecret",
		"role_id":  f.roleID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := f.store.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hashed:newsecret", stored.PasswordHash)
	assert.Equal(t, "admin", stored.RoleName)
	assert.Equal(t, "a@example.com", stored.Email)
}

func TestHandlers_ListGetDelete(t *testing.T) {
	f := newUserFixture(t)

	user := &User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}
	require.NoError(t, f.store.Create(context.Background(), user))

	rec := f.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `"username"`))

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
