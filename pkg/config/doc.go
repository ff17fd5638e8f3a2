// Package config loads docket's configuration.
//
// Values come from three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file named by DOCKET_CONFIG
//  3. DOCKET_* environment variables
//
// Common environment variables:
//
//	DOCKET_PORT="8080"
//	DOCKET_OPS_PORT="9090"
//	DOCKET_DB_DRIVER="postgres"          # postgres, sqlite3
//	DOCKET_DB_DSN="postgres://docket@db/docket?sslmode=disable"
//	DOCKET_JWT_SECRET="..."              # at least 32 bytes
//	DOCKET_TOKEN_TTL="24h"
//	DOCKET_DEFAULT_ROLE="viewer"
//	DOCKET_STORAGE_BACKEND="s3"          # filesystem, s3
//	DOCKET_S3_BUCKET="docket-documents"
//	DOCKET_REDIS_URL="redis://cache:6379/0"
//	DOCKET_LOG_LEVEL="info"              # debug, info, warn, error
//
// Validate reports problems as apperrors.ErrConfiguration. String renders the
// configuration with secrets masked, so it is safe to log at startup.
package config
