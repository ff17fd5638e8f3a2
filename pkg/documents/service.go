package documents

import (
	"context"
	"errors"
	"io"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/storage"
)

// Repository persists document rows scoped by owner
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id, ownerID int64) (*Document, error)
	List(ctx context.Context, ownerID int64) ([]Document, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id, ownerID int64) error
}

// Service coordinates document rows with their stored content
type Service struct {
	repo    Repository
	objects storage.ObjectStore
	config  Config
}

// NewService creates a new document service
func NewService(repo Repository, objects storage.ObjectStore, cfg Config) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = DefaultAllowedContentTypes
	}
	return &Service{repo: repo, objects: objects, config: cfg}
}

// Config returns the upload limits in effect
func (s *Service) Config() Config {
	return s.config
}

// Upload stores the content and then records the document for ownerID.
// If the row cannot be written the stored object is removed again.
func (s *Service) Upload(ctx context.Context, ownerID int64, req UploadRequest) (*Document, error) {
	title, err := NormalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	contentType := normalizeContentType(req.ContentType)
	if !s.config.allows(contentType) {
		return nil, apperrors.Validation("content type %q is not allowed", contentType)
	}
	if req.Size <= 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if req.Size > s.config.MaxUploadBytes {
		return nil, apperrors.Validation("file exceeds maximum size of %d bytes", s.config.MaxUploadBytes)
	}
	if req.Content == nil {
		return nil, apperrors.Validation("file is required")
	}

	key, err := s.objects.Put(ctx, ownerID, io.LimitReader(req.Content, s.config.MaxUploadBytes), req.Size, req.FileName, contentType)
	if err != nil {
		return nil, upstream("store document content", err)
	}

	doc := &Document{
		Title:       title,
		Path:        key,
		ContentType: contentType,
		Size:        req.Size,
		Metadata:    req.Metadata,
		UserID:      ownerID,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		// Best-effort cleanup; the insert error is what the caller sees
		if cerr := s.objects.Delete(context.WithoutCancel(ctx), key); cerr != nil {
			observability.FromContext(ctx).
				WithError(cerr).
				WithField("storage_key", key).
				Error("Failed to remove orphaned document content")
		}
		return nil, err
	}
	return doc, nil
}

// Get returns a document owned by ownerID
func (s *Service) Get(ctx context.Context, ownerID, id int64) (*Document, error) {
	return s.repo.Get(ctx, id, ownerID)
}

// List returns all documents owned by ownerID
func (s *Service) List(ctx context.Context, ownerID int64) ([]Document, error) {
	return s.repo.List(ctx, ownerID)
}

// Open returns a document owned by ownerID together with its content.
// The caller must close the reader.
func (s *Service) Open(ctx context.Context, ownerID, id int64) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.objects.Get(ctx, doc.Path)
	if err != nil {
		return nil, nil, upstream("read document content", err)
	}
	return doc, rc, nil
}

// Update changes the title or metadata of a document owned by ownerID.
// It returns the document as it was before and after the change.
func (s *Service) Update(ctx context.Context, ownerID, id int64, req UpdateRequest) (before, after *Document, err error) {
	doc, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	snapshot := *doc
	before = &snapshot

	if req.Title != nil {
		if doc.Title, err = NormalizeTitle(*req.Title); err != nil {
			return nil, nil, err
		}
	}
	if req.Metadata != nil {
		doc.Metadata = req.Metadata
	}

	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, nil, err
	}
	return before, doc, nil
}

// Delete removes the stored content of a document owned by ownerID and then its row.
// If the content cannot be removed the row is kept.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) (*Document, error) {
	doc, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Delete(ctx, doc.Path); err != nil {
		return nil, upstream("delete document content", err)
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return doc, nil
}

// upstream classifies an object store failure. Errors that already carry a kind keep it.
func upstream(op string, err error) error {
	switch {
	case apperrors.IsValidation(err), apperrors.IsUpstream(err), apperrors.IsNotFound(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.Upstream(op, err)
	}
}
