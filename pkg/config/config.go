package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/database"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/storage"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file
const ConfigFileEnv = "DOCKET_CONFIG"

const masked = "****"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Uploads       UploadConfig        `yaml:"uploads"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	OpsPort string `yaml:"ops_port"`
}

// DatabaseConfig holds relational store configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds credential and token settings
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	BcryptConcurrency int           `yaml:"bcrypt_concurrency"`
	DefaultRole       string        `yaml:"default_role"`
	LoginRateLimit    int           `yaml:"login_rate_limit"`
	LoginRateWindow   time.Duration `yaml:"login_rate_window"`
	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For for the login limiter
	TrustedProxies    []string      `yaml:"trusted_proxies"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	FilesystemRoot string `yaml:"filesystem_root"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// UploadConfig holds document upload limits
type UploadConfig struct {
	MaxBytes            int64    `yaml:"max_bytes"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
}

// RedisConfig holds the optional Redis connection used for distributed rate limiting
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// BootstrapConfig controls startup schema and catalog setup
type BootstrapConfig struct {
	MigrateOnStart bool `yaml:"migrate_on_start"`
	SeedOnStart    bool `yaml:"seed_on_start"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			OpsPort:         "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			DSN:             "docket.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL:          auth.DefaultTokenTTL,
			BcryptConcurrency: runtime.NumCPU(),
			DefaultRole:       auth.DefaultRoleName,
			LoginRateLimit:    10,
			LoginRateWindow:   time.Minute,
		},
		Storage: StorageConfig{
			Backend:        storage.BackendFilesystem,
			FilesystemRoot: "./data/uploads",
			S3Region:       "us-east-1",
			S3Bucket:       "docket-documents",
		},
		Uploads: UploadConfig{
			MaxBytes:            documents.DefaultMaxUploadBytes,
			AllowedContentTypes: append([]string(nil), documents.DefaultAllowedContentTypes...),
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "docket",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
		Bootstrap: BootstrapConfig{
			MigrateOnStart: true,
			SeedOnStart:    true,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// DOCKET_CONFIG, and environment overrides, in that order
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Configuration("failed to read config file %s: %v", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Configuration("failed to parse config file %s: %v", path, err)
	}
	return nil
}

// applyEnv overrides any field whose environment variable is set
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("DOCKET_HOST", c.Server.Host)
	c.Server.Port = getEnv("DOCKET_PORT", c.Server.Port)
	c.Server.OpsPort = getEnv("DOCKET_OPS_PORT", c.Server.OpsPort)
	c.Server.ReadTimeout = getEnvDuration("DOCKET_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("DOCKET_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("DOCKET_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.RequestTimeout = getEnvDuration("DOCKET_REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("DOCKET_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnv("DOCKET_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DOCKET_DB_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("DOCKET_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DOCKET_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DOCKET_DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Auth.JWTSecret = getEnv("DOCKET_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvDuration("DOCKET_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.BcryptConcurrency = getEnvInt("DOCKET_BCRYPT_CONCURRENCY", c.Auth.BcryptConcurrency)
	c.Auth.DefaultRole = getEnv("DOCKET_DEFAULT_ROLE", c.Auth.DefaultRole)
	c.Auth.LoginRateLimit = getEnvInt("DOCKET_LOGIN_RATE_LIMIT", c.Auth.LoginRateLimit)
	c.Auth.LoginRateWindow = getEnvDuration("DOCKET_LOGIN_RATE_WINDOW", c.Auth.LoginRateWindow)
	if proxies := getEnv("DOCKET_TRUSTED_PROXIES", ""); proxies != "" {
		c.Auth.TrustedProxies = splitList(proxies)
	}

	c.Storage.Backend = getEnv("DOCKET_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.FilesystemRoot = getEnv("DOCKET_FILESYSTEM_ROOT", c.Storage.FilesystemRoot)
	c.Storage.S3Endpoint = getEnv("DOCKET_S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3Region = getEnv("DOCKET_S3_REGION", c.Storage.S3Region)
	c.Storage.S3Bucket = getEnv("DOCKET_S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3AccessKey = getEnv("DOCKET_S3_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = getEnv("DOCKET_S3_SECRET_KEY", c.Storage.S3SecretKey)
	c.Storage.S3UsePathStyle = getEnvBool("DOCKET_S3_USE_PATH_STYLE", c.Storage.S3UsePathStyle)

	c.Uploads.MaxBytes = getEnvInt64("DOCKET_UPLOAD_MAX_BYTES", c.Uploads.MaxBytes)
	if types := getEnv("DOCKET_UPLOAD_CONTENT_TYPES", ""); types != "" {
		c.Uploads.AllowedContentTypes = splitList(types)
	}

	c.Redis.URL = getEnv("DOCKET_REDIS_URL", c.Redis.URL)

	c.Observability.LogLevel = getEnv("DOCKET_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("DOCKET_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("DOCKET_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("DOCKET_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("DOCKET_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("DOCKET_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("DOCKET_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("DOCKET_OTEL_INSECURE", c.Observability.OTelInsecure)

	c.Bootstrap.MigrateOnStart = getEnvBool("DOCKET_MIGRATE_ON_START", c.Bootstrap.MigrateOnStart)
	c.Bootstrap.SeedOnStart = getEnvBool("DOCKET_SEED_ON_START", c.Bootstrap.SeedOnStart)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return apperrors.Configuration("server port is required")
	}
	if c.Server.OpsPort == "" {
		return apperrors.Configuration("ops port is required")
	}
	if c.Server.Port == c.Server.OpsPort {
		return apperrors.Configuration("server port and ops port must be different")
	}

	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return apperrors.Configuration("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return apperrors.Configuration("database DSN is required")
	}

	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return apperrors.Configuration("JWT secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return apperrors.Configuration("token TTL must be positive")
	}
	if c.Auth.BcryptConcurrency <= 0 {
		return apperrors.Configuration("bcrypt concurrency must be positive")
	}
	if strings.TrimSpace(c.Auth.DefaultRole) == "" {
		return apperrors.Configuration("default role is required")
	}
	if c.Auth.LoginRateLimit <= 0 || c.Auth.LoginRateWindow <= 0 {
		return apperrors.Configuration("login rate limit and window must be positive")
	}
	if _, err := middleware.ParseTrustedProxies(c.Auth.TrustedProxies); err != nil {
		return apperrors.Configuration("%v", err)
	}

	// Validate storage config based on backend
	switch c.Storage.Backend {
	case storage.BackendFilesystem:
		if c.Storage.FilesystemRoot == "" {
			return apperrors.Configuration("filesystem root is required for filesystem storage")
		}
	case storage.BackendS3:
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return apperrors.Configuration("S3 bucket and region are required for s3 storage")
		}
	default:
		return apperrors.Configuration("invalid storage backend: %s (must be filesystem or s3)", c.Storage.Backend)
	}

	if c.Uploads.MaxBytes <= 0 {
		return apperrors.Configuration("upload max bytes must be positive")
	}
	if len(c.Uploads.AllowedContentTypes) == 0 {
		return apperrors.Configuration("at least one upload content type is required")
	}

	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			return apperrors.Configuration("invalid redis URL: %v", err)
		}
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return apperrors.Configuration("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return apperrors.Configuration("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return apperrors.Configuration("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ServerAddr returns the API listen address
func (c *Config) ServerAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// OpsAddr returns the health and metrics listen address
func (c *Config) OpsAddr() string {
	return c.Server.Host + ":" + c.Server.OpsPort
}

// DatabaseOptions converts the database section for database.Open
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// StorageOptions converts the storage section for storage.New
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Backend:        c.Storage.Backend,
		FilesystemRoot: c.Storage.FilesystemRoot,
		S3Endpoint:     c.Storage.S3Endpoint,
		S3Region:       c.Storage.S3Region,
		S3Bucket:       c.Storage.S3Bucket,
		S3AccessKey:    c.Storage.S3AccessKey,
		S3SecretKey:    c.Storage.S3SecretKey,
		S3UsePathStyle: c.Storage.S3UsePathStyle,
	}
}

// AuthOptions converts the auth section for auth.NewService
func (c *Config) AuthOptions() auth.Config {
	return auth.Config{
		DefaultRole: c.Auth.DefaultRole,
		TokenTTL:    c.Auth.TokenTTL,
	}
}

// UploadOptions converts the uploads section for documents.NewService
func (c *Config) UploadOptions() documents.Config {
	return documents.Config{
		MaxUploadBytes:      c.Uploads.MaxBytes,
		AllowedContentTypes: c.Uploads.AllowedContentTypes,
	}
}

// LoginRateLimitOptions converts the login limiter settings
func (c *Config) LoginRateLimitOptions() *middleware.RateLimitConfig {
	rl := middleware.LoginRateLimitConfig()
	rl.RequestsPerWindow = c.Auth.LoginRateLimit
	rl.WindowDuration = c.Auth.LoginRateWindow
	return rl
}

// OTelOptions converts the observability section for observability.InitOTel
func (c *Config) OTelOptions() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
}

// String renders the configuration as YAML with secrets masked
func (c *Config) String() string {
	redacted := *c
	if redacted.Auth.JWTSecret != "" {
		redacted.Auth.JWTSecret = masked
	}
	if redacted.Storage.S3SecretKey != "" {
		redacted.Storage.S3SecretKey = masked
	}
	if redacted.Storage.S3AccessKey != "" {
		redacted.Storage.S3AccessKey = masked
	}
	redacted.Database.DSN = maskDSN(redacted.Database.DSN)
	redacted.Redis.URL = maskDSN(redacted.Redis.URL)

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)(\S+)`)

// maskDSN hides passwords in URL and key=value connection strings
func maskDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), masked)
			return u.String()
		}
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}"+masked)
}

// splitList parses a comma separated list, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
