// Package middleware provides HTTP middleware for token authentication and
// login throttling.
//
// AuthMiddleware verifies the bearer token and binds a contextkeys.Identity to
// the request:
//
//	authMW := middleware.NewAuthMiddleware(issuer, false)
//	protected.Use(authMW.Handler)
//
// LoginRateLimitMiddleware limits login attempts per client IP and username,
// answering 429 with Retry-After once the window is used up. It runs over any
// Limiter: the in-memory RateLimiter for a single instance or the
// DistributedRateLimiter when Redis is configured.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "docket:login")
//	loginMW := middleware.NewLoginRateLimitMiddleware(limiter, "redis", cfg, metrics, auditLogger)
//
// A limiter error fails open.
package middleware
