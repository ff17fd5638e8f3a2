package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/users"
)

// loginLimiterPrefix namespaces the login limiter keys in Redis
const loginLimiterPrefix = "docket:ratelimit"

// Dependencies are the long-lived resources the server is built on.
// Redis, Registry, Metrics and AuditLogger are optional. Metrics is built
// from Registry when only the registry is given.
type Dependencies struct {
	DB          *sql.DB
	Objects     storage.ObjectStore
	Redis       *redis.Client
	Logger      *observability.Logger
	Registry    *prometheus.Registry
	Metrics     *observability.Metrics
	AuditLogger audit.Logger
	Version     string

	// HashCost overrides the bcrypt cost; zero means auth.BcryptCost
	HashCost int
}

// Server serves the docket API and a separate ops endpoint for health and metrics
type Server struct {
	cfg     *config.Config
	deps    Dependencies
	logger  *observability.Logger
	metrics *observability.Metrics
	handler http.Handler
	api     *http.Server
	ops     *http.Server
}

// New wires stores, services and handlers into a router
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.DB == nil || deps.Objects == nil || deps.Logger == nil {
		return nil, fmt.Errorf("server requires a database, an object store and a logger")
	}
	if deps.AuditLogger == nil {
		deps.AuditLogger = audit.NewNoOpLogger()
	}
	if deps.HashCost == 0 {
		deps.HashCost = auth.BcryptCost
	}

	metrics := deps.Metrics
	if metrics == nil && deps.Registry != nil && cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(deps.Registry)
	}

	issuer, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	// Stores
	roleStore := rbac.NewStore(deps.DB, cfg.Auth.DefaultRole)
	userStore := users.NewStore(deps.DB)
	docStore := documents.NewStore(deps.DB)

	guard := rbac.NewGuard(roleStore, rbac.DefaultPolicy(),
		rbac.WithAuditLogger(deps.AuditLogger),
		rbac.WithMetrics(metrics),
	)
	hasher := auth.NewPasswordHasher(deps.HashCost, cfg.Auth.BcryptConcurrency, metrics)
	authService := auth.NewService(userStore, roleStore, hasher, issuer, cfg.AuthOptions(),
		auth.WithAudit(deps.AuditLogger),
		auth.WithServiceMetrics(metrics),
	)
	docService := documents.NewService(docStore, deps.Objects, cfg.UploadOptions())

	loginLimit := cfg.LoginRateLimitOptions()
	var limiter middleware.Limiter
	if deps.Redis != nil {
		limiter = middleware.NewDistributedRateLimiter(deps.Redis, loginLimit, loginLimiterPrefix)
	} else {
		limiter = middleware.NewRateLimiter(loginLimit)
	}
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Auth.TrustedProxies)
	if err != nil {
		return nil, apperrors.Configuration("%v", err)
	}
	loginLimiter := middleware.NewLoginRateLimitMiddleware(limiter, "login", loginLimit, metrics, deps.AuditLogger,
		middleware.WithTrustedProxies(trustedProxies))
	authn := middleware.NewAuthMiddleware(issuer, false)

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	// Public routes are registered first so they match before the protected catch-all
	authHandlers := auth.NewHandlers(authService, guard)
	authHandlers.RegisterPublicRoutes(router, loginLimiter.Handler)

	protected := router.NewRoute().Subrouter()
	protected.Use(authn.Handler)
	authHandlers.RegisterRoutes(protected)
	users.NewHandlers(userStore, roleStore, cfg.Auth.DefaultRole, hasher, guard, deps.AuditLogger).RegisterRoutes(protected)
	rbac.NewHandlers(roleStore, guard, deps.AuditLogger).RegisterRoutes(protected)
	documents.NewHandlers(docService, guard, deps.AuditLogger).RegisterRoutes(protected)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})

	chain := httputil.Chain(
		httputil.RequestIDMiddleware(deps.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(cfg.Uploads.MaxBytes+(1<<20)),
		TimeoutMiddleware(cfg.Server.RequestTimeout),
	)
	handler := otelhttp.NewHandler(chain(router), "docket-api")

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		metrics: metrics,
		handler: handler,
	}
	s.api = &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	s.ops = &http.Server{
		Addr:         cfg.OpsAddr(),
		Handler:      s.opsHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the instrumented API handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// OpsHandler returns the health and metrics handler
func (s *Server) OpsHandler() http.Handler {
	return s.ops.Handler
}

func (s *Server) opsHandler() http.Handler {
	mux := http.NewServeMux()
	checker := observability.NewHealthChecker(s.deps.DB, s.deps.Redis, s.deps.Objects, s.deps.Version)
	observability.RegisterHealthRoutes(mux, checker)
	if s.metrics != nil && s.deps.Registry != nil {
		observability.RegisterMetricsEndpoint(mux, s.deps.Registry)
	}
	return mux
}

// Run serves the API and ops endpoints until ctx is cancelled, then drains both
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	serve := func(name string, srv *http.Server) func() error {
		return func() error {
			s.logger.WithFields(map[string]interface{}{"server": name, "addr": srv.Addr}).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		}
	}
	g.Go(serve("api", s.api))
	g.Go(serve("ops", s.ops))

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		err := s.api.Shutdown(shutdownCtx)
		if opsErr := s.ops.Shutdown(shutdownCtx); opsErr != nil && err == nil {
			err = opsErr
		}
		return err
	})

	return g.Wait()
}

// TimeoutMiddleware bounds each request's context. Zero disables it.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
