package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/platinummonkey/docket/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FilesystemStore implements ObjectStore on the local filesystem
type FilesystemStore struct {
	rootDir string
	metrics *observability.Metrics
}

// NewFilesystemStore creates a new filesystem-based object store
func NewFilesystemStore(rootDir string, metrics *observability.Metrics) (*FilesystemStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("filesystem root is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir, metrics: metrics}, nil
}

// Put implements ObjectStore.Put. Content is written to a temp file and renamed into place.
func (s *FilesystemStore) Put(ctx context.Context, ownerID int64, r io.Reader, size int64, originalName, contentType string) (key string, err error) {
	start := time.Now()
	key = ObjectKey(ownerID, originalName, start)
	ctx, span := observability.Tracer().Start(ctx, "Filesystem.Put",
		trace.WithAttributes(attribute.String("storage.key", key), attribute.Int64("content.size", size)))
	defer func() {
		finishSpan(span, err)
		s.metrics.ObserveStorage("put", start, err)
	}()

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move object into place: %w", err)
	}
	return key, nil
}

// Get implements ObjectStore.Get
func (s *FilesystemStore) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	start := time.Now()
	_, span := observability.Tracer().Start(ctx, "Filesystem.Get", trace.WithAttributes(attribute.String("storage.key", key)))
	defer func() {
		finishSpan(span, err)
		s.metrics.ObserveStorage("get", start, err)
	}()

	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Delete implements ObjectStore.Delete
func (s *FilesystemStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	_, span := observability.Tracer().Start(ctx, "Filesystem.Delete", trace.WithAttributes(attribute.String("storage.key", key)))
	defer func() {
		finishSpan(span, err)
		s.metrics.ObserveStorage("delete", start, err)
	}()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies the root directory is reachable
func (s *FilesystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("filesystem health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem health check failed: %s is not a directory", s.rootDir)
	}
	return nil
}

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}

// contextReader stops a copy once ctx is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
