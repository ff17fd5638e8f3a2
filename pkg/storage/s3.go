package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/observability"
)

// s3API is the subset of *s3.Client used by S3Store
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store implements ObjectStore on S3 or an S3-compatible service such as MinIO
type S3Store struct {
	client  s3API
	bucket  string
	metrics *observability.Metrics
	now     func() time.Time
}

// NewS3Store creates an S3 store and ensures the bucket exists
func NewS3Store(ctx context.Context, cfg Config, metrics *observability.Metrics) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, apperrors.Configuration("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials for MinIO or explicit keys; otherwise the default chain applies
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	store := newS3Store(client, cfg.S3Bucket, metrics)
	if err := store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return store, nil
}

func newS3Store(client s3API, bucket string, metrics *observability.Metrics) *S3Store {
	return &S3Store{client: client, bucket: bucket, metrics: metrics, now: time.Now}
}

// Put implements ObjectStore.Put
func (s *S3Store) Put(ctx context.Context, ownerID int64, r io.Reader, size int64, originalName, contentType string) (key string, err error) {
	start := time.Now()
	key = ObjectKey(ownerID, originalName, s.now())
	ctx, span := s.startSpan(ctx, "PutObject", key, attribute.String("content.type", contentType))
	defer func() { s.finish(span, "put", start, err) }()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", apperrors.Validation("content length %d does not match declared size %d", len(data), size)
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"owner-id":        fmt.Sprintf("%d", ownerID),
		},
	})
	if err != nil {
		return "", apperrors.Upstream("upload to s3", err)
	}
	return key, nil
}

// Get implements ObjectStore.Get
func (s *S3Store) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "GetObject", key)
	defer func() { s.finish(span, "get", start, err) }()

	if err := validateKey(key); err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFoundError(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, apperrors.Upstream("get object from s3", err)
	}
	if result.ContentLength != nil {
		span.SetAttributes(attribute.Int64("content.size", *result.ContentLength))
	}
	return result.Body, nil
}

// Delete implements ObjectStore.Delete. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "DeleteObject", key)
	defer func() { s.finish(span, "delete", start, err) }()

	if err := validateKey(key); err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFoundError(err) {
		return apperrors.Upstream("delete object from s3", err)
	}
	return nil
}

// HealthCheck verifies S3 connectivity
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}

	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *S3Store) startSpan(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("s3.operation", op),
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	}, attrs...)
	return observability.Tracer().Start(ctx, "S3."+op, trace.WithAttributes(attrs...))
}

func (s *S3Store) finish(span trace.Span, op string, start time.Time, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
	}
	finishSpan(span, err)
	s.metrics.ObserveStorage(op, start, err)
}

func isNotFoundError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func isBucketAlreadyExistsError(err error) bool {
	var exists *types.BucketAlreadyExists
	var owned *types.BucketAlreadyOwnedByYou
	return errors.As(err, &exists) || errors.As(err, &owned)
}
