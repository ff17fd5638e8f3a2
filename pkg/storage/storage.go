package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/observability"
)

// Backend names
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

// ErrObjectNotFound is returned when a stored object does not exist
var ErrObjectNotFound = fmt.Errorf("%w: stored object", apperrors.ErrNotFound)

// ObjectStore stores uploaded document content under opaque keys
type ObjectStore interface {
	// Put stores r under a new key for ownerID and returns the key
	Put(ctx context.Context, ownerID int64, r io.Reader, size int64, originalName, contentType string) (string, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object stored under key. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error
	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error
}

// Config for the object storage backend
type Config struct {
	Backend string // "filesystem" or "s3"

	// Filesystem config
	FilesystemRoot string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Backend:        BackendFilesystem,
		FilesystemRoot: "./data/uploads",
		S3Region:       "us-east-1",
		S3Bucket:       "docket-documents",
	}
}

// New creates the configured object store
func New(ctx context.Context, cfg Config, metrics *observability.Metrics) (ObjectStore, error) {
	switch cfg.Backend {
	case BackendFilesystem, "":
		return NewFilesystemStore(cfg.FilesystemRoot, metrics)
	case BackendS3:
		return NewS3Store(ctx, cfg, metrics)
	default:
		return nil, apperrors.Configuration("unknown storage backend %q", cfg.Backend)
	}
}

// ObjectKey builds a unique key of the form <ownerID>/<unix-millis>-<uuid>-<basename>
func ObjectKey(ownerID int64, originalName string, now time.Time) string {
	return fmt.Sprintf("%d/%d-%s-%s", ownerID, now.UnixMilli(), uuid.NewString(), sanitizeBaseName(originalName))
}

// sanitizeBaseName keeps the final path element and replaces unsafe characters
func sanitizeBaseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

// validateKey rejects keys that could escape the storage namespace
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return apperrors.Validation("invalid object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return apperrors.Validation("invalid object key")
		}
	}
	return nil
}
