package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := database.OpenTestDB(t)
	return NewStore(db), db
}

func insertUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id",
		username, username+"@example.com", "hash",
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func newDocument(ownerID int64, title string) *Document {
	return &Document{
		Title:       title,
		Path:        "1/123-abc-" + title,
		ContentType: "application/pdf",
		Size:        10,
		Metadata:    map[string]interface{}{"tag": "finance"},
		UserID:      ownerID,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	alice := insertUser(t, db, "alice")

	doc := newDocument(alice, "report.pdf")
	require.NoError(t, store.Create(ctx, doc))
	assert.NotZero(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := store.Get(ctx, doc.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Title)
	assert.Equal(t, doc.Path, got.Path)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, int64(10), got.Size)
	assert.Equal(t, "finance", got.Metadata["tag"])
	assert.Equal(t, alice, got.UserID)
}

func TestStore_NilMetadataStoredAsEmptyObject(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	alice := insertUser(t, db, "alice")

	doc := newDocument(alice, "scan.png")
	doc.Metadata = nil
	require.NoError(t, store.Create(ctx, doc))

	got, err := store.Get(ctx, doc.ID, alice)
	require.NoError(t, err)
	assert.NotNil(t, got.Metadata)
	assert.Empty(t, got.Metadata)
}

func TestStore_CreateUnknownOwner(t *testing.T) {
	store, _ := setupStore(t)

	err := store.Create(context.Background(), newDocument(999, "ghost.pdf"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestStore_OwnerScoping(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	alice := insertUser(t, db, "alice")
	bob := insertUser(t, db, "bobby")

	doc := newDocument(alice, "private.pdf")
	require.NoError(t, store.Create(ctx, doc))

	_, err := store.Get(ctx, doc.ID, bob)
	assert.True(t, apperrors.IsNotFound(err), "another owner's document reads as not found")

	bobsCopy := *doc
	bobsCopy.UserID = bob
	bobsCopy.Title = "stolen"
	assert.True(t, apperrors.IsNotFound(store.Update(ctx, &bobsCopy)))

	assert.True(t, apperrors.IsNotFound(store.Delete(ctx, doc.ID, bob)))

	got, err := store.Get(ctx, doc.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "private.pdf", got.Title)

	list, err := store.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_List(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	alice := insertUser(t, db, "alice")
	bob := insertUser(t, db, "bobby")

	first := newDocument(alice, "first.pdf")
	require.NoError(t, store.Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := newDocument(alice, "second.pdf")
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, newDocument(bob, "bobs.pdf")))

	list, err := store.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	alice := insertUser(t, db, "alice")

	doc := newDocument(alice, "draft.pdf")
	require.NoError(t, store.Create(ctx, doc))

	doc.Title = "final.pdf"
	doc.Metadata = map[string]interface{}{"version": float64(2)}
	require.NoError(t, store.Update(ctx, doc))

	got, err := store.Get(ctx, doc.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "final.pdf", got.Title)
	assert.Equal(t, float64(2), got.Metadata["version"])
	assert.NotContains(t, got.Metadata, "tag")

	require.NoError(t, store.Delete(ctx, doc.ID, alice))
	_, err = store.Get(ctx, doc.ID, alice)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(store.Delete(ctx, doc.ID, alice)))
}

func TestStore_DatabaseErrorIsNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, title").WillReturnError(errors.New("connection refused"))

	_, err = NewStore(db).Get(context.Background(), 1, 1)
	require.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
