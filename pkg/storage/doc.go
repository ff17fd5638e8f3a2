// Package storage holds uploaded document content behind the ObjectStore interface.
//
// Two backends are provided:
//
//   - FilesystemStore writes objects under a root directory. Best for development
//     and single-node deployments.
//   - S3Store writes objects to an S3 bucket or an S3-compatible service such as MinIO.
//
// Keys are opaque to callers and have the form <ownerID>/<unix-millis>-<uuid>-<basename>.
// The document row keeps the key as its path; nothing else is derived from it.
//
// Errors are returned without retry. Backend failures from S3 wrap apperrors.ErrUpstream,
// and a missing object wraps apperrors.ErrNotFound via ErrObjectNotFound.
//
// Usage:
//
//	store, err := storage.New(ctx, storage.Config{
//		Backend:        storage.BackendS3,
//		S3Endpoint:     "http://localhost:9000",
//		S3Region:       "us-east-1",
//		S3Bucket:       "docket-documents",
//		S3UsePathStyle: true,
//	}, metrics)
//
//	key, err := store.Put(ctx, ownerID, file, header.Size, header.Filename, "application/pdf")
package storage
