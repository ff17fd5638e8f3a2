package documents

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
)

const (
	// multipartOverhead allows for form fields and part headers around the file
	multipartOverhead = 1 << 20
	// multipartMemory is held in memory before parts spill to temp files
	multipartMemory = 1 << 20
)

// Handlers provides the document endpoints
type Handlers struct {
	service     *Service
	guard       *rbac.Guard
	auditLogger audit.Logger
}

// NewHandlers creates new document handlers
func NewHandlers(service *Service, guard *rbac.Guard, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{service: service, guard: guard, auditLogger: auditLogger}
}

// RegisterRoutes registers document routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	h.guard.Handle(router, http.MethodPost, "/documents", rbac.OpCreateDocument, h.UploadDocument)
	h.guard.Handle(router, http.MethodGet, "/documents", rbac.OpListDocuments, h.ListDocuments)
	h.guard.Handle(router, http.MethodGet, "/documents/{id:[0-9]+}", rbac.OpGetDocument, h.GetDocument)
	h.guard.Handle(router, http.MethodGet, "/documents/{id:[0-9]+}/content", rbac.OpDownloadDocument, h.DownloadDocument)
	h.guard.Handle(router, http.MethodPatch, "/documents/{id:[0-9]+}", rbac.OpUpdateDocument, h.UpdateDocument)
	h.guard.Handle(router, http.MethodDelete, "/documents/{id:[0-9]+}", rbac.OpDeleteDocument, h.DeleteDocument)
}

// UploadDocument accepts a multipart form with title, metadata and file fields
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	maxBytes := h.service.Config().MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteAppError(w, r, apperrors.Validation("file exceeds maximum size of %d bytes", maxBytes))
			return
		}
		httputil.WriteAppError(w, r, apperrors.Validation("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteAppError(w, r, apperrors.Validation("file is required"))
		return
	}
	defer file.Close()

	metadata, err := ParseMetadata(r.FormValue("metadata"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	contentType, err := partContentType(header, file)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	doc, err := h.service.Upload(r.Context(), ownerID, UploadRequest{
		Title:       r.FormValue("title"),
		Metadata:    metadata,
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     file,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeDocumentUpload, ownerID, doc.ID,
		&audit.ChangeDetails{After: documentFields(doc)}, "document uploaded")
	httputil.WriteCreated(w, doc)
}

// ListDocuments lists the caller's documents
func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	docs, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, docs)
}

// GetDocument returns one of the caller's documents
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.service.Get(r.Context(), ownerID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// DownloadDocument streams the content of one of the caller's documents
func (h *Handlers) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, content, err := h.service.Open(r.Context(), ownerID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Title}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Document download interrupted")
	}
}

// UpdateDocument changes the title or metadata of one of the caller's documents
func (h *Handlers) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, after, err := h.service.Update(r.Context(), ownerID, id, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeDocumentUpdate, ownerID, id,
		&audit.ChangeDetails{Before: documentFields(before), After: documentFields(after)}, "document updated")
	httputil.WriteSuccess(w, after)
}

// DeleteDocument removes one of the caller's documents and its content
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.service.Delete(r.Context(), ownerID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.logMutation(r.Context(), audit.EventTypeDocumentDelete, ownerID, id,
		&audit.ChangeDetails{Before: documentFields(doc)}, "document deleted")
	httputil.WriteSuccess(w, httputil.MessageResponse{Message: "Document deleted successfully"})
}

// requireOwner reads the caller's user id. The guard has already run, so a missing
// identity only happens when routes are wired without authentication.
func requireOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	identity, ok := contextkeys.GetIdentity(r.Context())
	if !ok || identity.UserID == 0 {
		httputil.WriteAppError(w, r, apperrors.ErrUnauthorized)
		return 0, false
	}
	return identity.UserID, true
}

// partContentType returns the declared media type of an uploaded part,
// sniffing the content when the client sent none
func partContentType(header *multipart.FileHeader, file multipart.File) (string, error) {
	declared := normalizeContentType(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", apperrors.Validation("unreadable file: %v", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.Validation("unreadable file: %v", err)
	}
	return normalizeContentType(http.DetectContentType(buf[:n])), nil
}

func (h *Handlers) logMutation(ctx context.Context, eventType audit.EventType, ownerID, id int64, changes *audit.ChangeDetails, message string) {
	if err := h.auditLogger.LogDataMutation(ctx, eventType, &ownerID, audit.ResourceTypeDocument, strconv.FormatInt(id, 10), changes, message); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
	}
}

func documentFields(d *Document) map[string]interface{} {
	return map[string]interface{}{
		"title":        d.Title,
		"path":         d.Path,
		"content_type": d.ContentType,
		"size":         d.Size,
		"metadata":     d.Metadata,
	}
}
