package documents

import (
	"encoding/json"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
)

// Upload limits
const (
	DefaultMaxUploadBytes int64 = 5 << 20
	MaxTitleLength              = 500
)

// DefaultAllowedContentTypes lists the media types accepted for upload
var DefaultAllowedContentTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.oasis.opendocument.text",
	"image/jpeg",
	"image/png",
}

// Document is an uploaded file owned by exactly one user
type Document struct {
	ID          int64                  `json:"id"`
	Title       string                 `json:"title"`
	Path        string                 `json:"path"`
	ContentType string                 `json:"content_type"`
	Size        int64                  `json:"size"`
	Metadata    map[string]interface{} `json:"metadata"`
	UserID      int64                  `json:"user_id"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// UploadRequest describes a new document and its content
type UploadRequest struct {
	Title       string
	Metadata    map[string]interface{}
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UpdateRequest changes a document's title or metadata. Nil fields are left unchanged.
type UpdateRequest struct {
	Title    *string                `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Config controls upload validation
type Config struct {
	MaxUploadBytes      int64
	AllowedContentTypes []string
}

// DefaultConfig returns the default upload limits
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:      DefaultMaxUploadBytes,
		AllowedContentTypes: DefaultAllowedContentTypes,
	}
}

// NormalizeTitle trims and validates a document title
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.Validation("title is required")
	}
	if len(title) > MaxTitleLength {
		return "", apperrors.Validation("title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

// ParseMetadata decodes a metadata form value. An empty value yields an empty object.
func ParseMetadata(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, apperrors.Validation("metadata must be a JSON object")
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return metadata, nil
}

// normalizeContentType strips parameters and lowercases the media type
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func (c Config) allows(contentType string) bool {
	for _, allowed := range c.AllowedContentTypes {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}
