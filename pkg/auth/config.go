package auth

import "time"

const (
	// DefaultRoleName is the role assigned to self-registered users
	DefaultRoleName = "viewer"

	// BcryptCost is the bcrypt work factor for stored passwords
	BcryptCost = 10

	// DefaultTokenTTL is how long an issued token stays valid
	DefaultTokenTTL = 24 * time.Hour

	// TokenIssuerName is the iss claim of every token
	TokenIssuerName = "docket"

	// MinSecretLength is the shortest accepted HMAC signing secret
	MinSecretLength = 32
)

// Config holds authentication settings
type Config struct {
	DefaultRole string
	TokenTTL    time.Duration
}

// DefaultConfig returns the default authentication settings
func DefaultConfig() Config {
	return Config{
		DefaultRole: DefaultRoleName,
		TokenTTL:    DefaultTokenTTL,
	}
}
