package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docFixture struct {
	router  *mux.Router
	objects *memObjects
	alice   int64
	bob     int64
	reader  int64
}

func newDocFixture(t *testing.T, cfg Config) *docFixture {
	t.Helper()
	store, db := setupStore(t)
	roles := rbac.NewStore(db)
	ctx := context.Background()

	perms := map[string]int64{}
	for _, name := range []string{rbac.PermDocumentsCreate, rbac.PermDocumentsView, rbac.PermDocumentsEdit, rbac.PermDocumentsDelete} {
		p, err := roles.CreatePermission(ctx, rbac.CreatePermissionRequest{Name: name})
		require.NoError(t, err)
		perms[name] = p.ID
	}
	editor, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "editor", PermissionIDs: []int64{
		perms[rbac.PermDocumentsCreate], perms[rbac.PermDocumentsView], perms[rbac.PermDocumentsEdit], perms[rbac.PermDocumentsDelete],
	}})
	require.NoError(t, err)
	readOnly, err := roles.CreateRole(ctx, rbac.CreateRoleRequest{Name: "reader", PermissionIDs: []int64{perms[rbac.PermDocumentsView]}})
	require.NoError(t, err)

	f := &docFixture{router: mux.NewRouter(), objects: newMemObjects()}
	f.alice = insertUser(t, db, "alice")
	f.bob = insertUser(t, db, "bobby")
	f.reader = insertUser(t, db, "carol")
	for id, role := range map[int64]int64{f.alice: editor.ID, f.bob: editor.ID, f.reader: readOnly.ID} {
		_, err := db.Exec("UPDATE users SET role_id = $1 WHERE id = $2", role, id)
		require.NoError(t, err)
	}

	guard := rbac.NewGuard(roles, rbac.DefaultPolicy())
	NewHandlers(NewService(store, f.objects, cfg), guard, nil).RegisterRoutes(f.router)
	return f
}

func (f *docFixture) serve(t *testing.T, userID int64, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req = req.WithContext(contextkeys.WithIdentity(req.Context(), contextkeys.Identity{UserID: userID}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *docFixture) do(t *testing.T, userID int64, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return f.serve(t, userID, httptest.NewRequest(method, path, &buf))
}

type uploadForm struct {
	title       string
	metadata    string
	fileName    string
	contentType string
	content     []byte
	omitFile    bool
}

func multipartRequest(t *testing.T, form uploadForm) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", form.title))
	if form.metadata != "" {
		require.NoError(t, mw.WriteField("metadata", form.metadata))
	}
	if !form.omitFile {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, form.fileName))
		if form.contentType != "" {
			header.Set("Content-Type", form.contentType)
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(form.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *docFixture) upload(t *testing.T, userID int64, title string) Document {
	t.Helper()
	rec := f.serve(t, userID, multipartRequest(t, uploadForm{
		title:       title,
		metadata:    `{"department":"legal"}`,
		fileName:    title + ".pdf",
		contentType: "application/pdf",
		content:     []byte("%PDF-1.4 " + title),
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	return doc
}

func TestHandlers_Upload(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())

	doc := f.upload(t, f.alice, "lease")
	assert.Equal(t, f.alice, doc.UserID)
	assert.Equal(t, "lease", doc.Title)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "legal", doc.Metadata["department"])
	assert.Equal(t, int64(len("%PDF-1.4 lease")), doc.Size)
	assert.Equal(t, 1, f.objects.count())
}

func TestHandlers_UploadSniffsMissingContentType(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	rec := f.serve(t, f.alice, multipartRequest(t, uploadForm{title: "scan", fileName: "scan", content: png}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "image/png", doc.ContentType)
}

func TestHandlers_UploadRejected(t *testing.T) {
	f := newDocFixture(t, Config{MaxUploadBytes: 64, AllowedContentTypes: DefaultAllowedContentTypes})

	tests := []struct {
		name   string
		user   int64
		form   uploadForm
		status int
	}{
		{"disallowed type", f.alice, uploadForm{title: "x", fileName: "x.html", contentType: "text/html", content: []byte("<html>")}, http.StatusBadRequest},
		{"too large", f.alice, uploadForm{title: "x", fileName: "x.pdf", contentType: "application/pdf", content: bytes.Repeat([]byte("a"), 65)}, http.StatusBadRequest},
		{"missing file", f.alice, uploadForm{title: "x", omitFile: true}, http.StatusBadRequest},
		{"missing title", f.alice, uploadForm{fileName: "x.pdf", contentType: "application/pdf", content: []byte("a")}, http.StatusBadRequest},
		{"metadata not an object", f.alice, uploadForm{title: "x", metadata: "[1]", fileName: "x.pdf", contentType: "application/pdf", content: []byte("a")}, http.StatusBadRequest},
		{"no create permission", f.reader, uploadForm{title: "x", fileName: "x.pdf", contentType: "application/pdf", content: []byte("a")}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(t, tt.user, multipartRequest(t, tt.form))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, f.objects.count())
}

func TestHandlers_ListAndGet(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())
	doc := f.upload(t, f.alice, "minutes")
	f.upload(t, f.bob, "bobs-notes")

	rec := f.do(t, f.alice, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, doc.ID, list[0].ID)

	rec = f.do(t, f.alice, http.MethodGet, fmt.Sprintf("/documents/%d", doc.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.bob, http.MethodGet, fmt.Sprintf("/documents/%d", doc.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.alice, http.MethodGet, "/documents/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_Download(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())
	doc := f.upload(t, f.alice, "invoice")

	rec := f.do(t, f.alice, http.MethodGet, fmt.Sprintf("/documents/%d/content", doc.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=invoice`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 invoice", rec.Body.String())

	rec = f.do(t, f.bob, http.MethodGet, fmt.Sprintf("/documents/%d/content", doc.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_Update(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())
	doc := f.upload(t, f.alice, "draft")

	rec := f.do(t, f.alice, http.MethodPatch, fmt.Sprintf("/documents/%d", doc.ID), map[string]interface{}{
		"title":    "signed",
		"metadata": map[string]interface{}{"status": "final"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "signed", updated.Title)
	assert.Equal(t, "final", updated.Metadata["status"])

	rec = f.do(t, f.bob, http.MethodPatch, fmt.Sprintf("/documents/%d", doc.ID), map[string]interface{}{"title": "mine"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.reader, http.MethodPatch, fmt.Sprintf("/documents/%d", doc.ID), map[string]interface{}{"title": "mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.alice, http.MethodPatch, fmt.Sprintf("/documents/%d", doc.ID), map[string]interface{}{"owner": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestHandlers_Delete(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())
	doc := f.upload(t, f.alice, "obsolete")
	path := fmt.Sprintf("/documents/%d", doc.ID)

	rec := f.do(t, f.bob, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, f.objects.count())

	rec = f.do(t, f.alice, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Document deleted successfully"))
	assert.Zero(t, f.objects.count())

	rec = f.do(t, f.alice, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_DeleteStorageFailure(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())
	doc := f.upload(t, f.alice, "pinned")
	f.objects.deleteErr = fmt.Errorf("s3 unavailable")

	rec := f.do(t, f.alice, http.MethodDelete, fmt.Sprintf("/documents/%d", doc.ID), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, f.alice, http.MethodGet, fmt.Sprintf("/documents/%d", doc.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code, "row survives a failed storage delete")
}

func TestHandlers_RequiresIdentity(t *testing.T) {
	f := newDocFixture(t, DefaultConfig())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
