package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/users"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong password
var ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", apperrors.ErrUnauthorized)

// UserStore is the credential store the service reads and writes
type UserStore interface {
	Create(ctx context.Context, user *users.User) error
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByUsername(ctx context.Context, username string) (*users.User, error)
}

// RoleLookup resolves role names
type RoleLookup interface {
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
}

// RegisterRequest is the self-registration payload
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is the result of a successful login
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *users.User `json:"user"`
}

// Service implements registration, login and logout
type Service struct {
	users   UserStore
	roles   RoleLookup
	hasher  *PasswordHasher
	issuer  TokenIssuer
	config  Config
	audit   audit.Logger
	metrics *observability.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithAudit records authentication events
func WithAudit(logger audit.Logger) ServiceOption {
	return func(s *Service) { s.audit = logger }
}

// WithServiceMetrics records login and registration outcomes
func WithServiceMetrics(metrics *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates an authentication service
func NewService(userStore UserStore, roles RoleLookup, hasher *PasswordHasher, issuer TokenIssuer, cfg Config, opts ...ServiceOption) *Service {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRoleName
	}
	s := &Service{
		users:  userStore,
		roles:  roles,
		hasher: hasher,
		issuer: issuer,
		config: cfg,
		audit:  audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user holding the default role
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*users.User, error) {
	user, err := s.register(ctx, req)
	if err != nil {
		s.metrics.RecordAuthAttempt("register", observability.ResultFailure)
		return nil, err
	}

	s.metrics.RecordAuthAttempt("register", observability.ResultSuccess)
	s.logAuth(ctx, audit.EventTypeAuthRegister, &user.ID, user.Username, audit.EventStatusSuccess, "user registered")
	return user, nil
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (*users.User, error) {
	username, err := users.NormalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}
	email, err := users.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := users.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	role, err := s.roles.GetRoleByName(ctx, s.config.DefaultRole)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Configuration("default role %q does not exist", s.config.DefaultRole)
		}
		return nil, fmt.Errorf("failed to resolve default role: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	user := &users.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleID:       &role.ID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a token
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	// Registration stores the trimmed name
	username = strings.TrimSpace(username)
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.metrics.RecordAuthAttempt("login", observability.ResultError)
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		// Keep timing in line with the wrong-password path
		_ = s.hasher.Compare(ctx, s.dummy(), password)
		s.loginFailed(ctx, nil, username)
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(ctx, user.PasswordHash, password); err != nil {
		if apperrors.IsUnauthorized(err) {
			s.loginFailed(ctx, &user.ID, username)
			return nil, ErrInvalidCredentials
		}
		s.metrics.RecordAuthAttempt("login", observability.ResultError)
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(NewClaims(user.ID, user.Username, user.RoleName))
	if err != nil {
		s.metrics.RecordAuthAttempt("login", observability.ResultError)
		return nil, err
	}

	s.metrics.RecordAuthAttempt("login", observability.ResultSuccess)
	s.logAuth(ctx, audit.EventTypeAuthLogin, &user.ID, user.Username, audit.EventStatusSuccess, "login succeeded")
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Logout ends the caller's session. Tokens are stateless, so nothing is stored;
// the returned context no longer carries the identity.
func (s *Service) Logout(ctx context.Context) context.Context {
	if identity, ok := contextkeys.GetIdentity(ctx); ok {
		uid := identity.UserID
		s.logAuth(ctx, audit.EventTypeAuthLogout, &uid, identity.Username, audit.EventStatusSuccess, "logged out")
	}
	return contextkeys.WithoutIdentity(ctx)
}

// Me returns the authenticated caller's account
func (s *Service) Me(ctx context.Context) (*users.User, error) {
	identity, ok := contextkeys.GetIdentity(ctx)
	if !ok || identity.UserID == 0 {
		return nil, fmt.Errorf("%w: no authenticated identity", apperrors.ErrUnauthorized)
	}
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: account no longer exists", apperrors.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("docket-timing-equalizer"), s.hasher.cost)
		if err == nil {
			s.dummyHash = string(hash)
		}
	})
	return s.dummyHash
}

func (s *Service) loginFailed(ctx context.Context, userID *int64, username string) {
	s.metrics.RecordAuthAttempt("login", observability.ResultFailure)
	s.logAuth(ctx, audit.EventTypeAuthLoginFailed, userID, username, audit.EventStatusFailure, "invalid credentials")
}

func (s *Service) logAuth(ctx context.Context, eventType audit.EventType, userID *int64, username string, status audit.EventStatus, message string) {
	if err := s.audit.LogAuthentication(ctx, eventType, userID, username, status, message); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
	}
}
