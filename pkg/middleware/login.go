package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
)

const maxLoginBodyBytes = 64 << 10

// LoginRateLimitMiddleware throttles login attempts per client IP and username
type LoginRateLimitMiddleware struct {
	limiter     Limiter
	name        string
	retryAfter  int
	metrics     *observability.Metrics
	auditLogger audit.Logger
	trusted     []*net.IPNet
}

// LoginOption configures a LoginRateLimitMiddleware
type LoginOption func(*LoginRateLimitMiddleware)

// WithTrustedProxies lets peers inside these networks set X-Forwarded-For and X-Real-IP.
// Without it the limiter keys on the connection's remote address only.
func WithTrustedProxies(networks []*net.IPNet) LoginOption {
	return func(m *LoginRateLimitMiddleware) {
		m.trusted = networks
	}
}

// NewLoginRateLimitMiddleware creates login throttling over limiter.
// name labels the limiter in metrics; config supplies the Retry-After hint.
func NewLoginRateLimitMiddleware(limiter Limiter, name string, config *RateLimitConfig, metrics *observability.Metrics, auditLogger audit.Logger, opts ...LoginOption) *LoginRateLimitMiddleware {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	m := &LoginRateLimitMiddleware{
		limiter:     limiter,
		name:        name,
		retryAfter:  int(config.WindowDuration.Seconds()),
		metrics:     metrics,
		auditLogger: auditLogger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ParseTrustedProxies parses proxy addresses given as single IPs or CIDR blocks
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var networks []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return networks, nil
}

// Handler wraps the login handler
func (m *LoginRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		username := peekUsername(r)
		key := fmt.Sprintf("login:%s:%s", clientIP(r, m.trusted), strings.ToLower(username))

		allowed, err := m.limiter.Allow(ctx, key)
		if err != nil {
			// Fail open so a Redis outage does not lock everyone out
			observability.FromContext(ctx).WithError(err).Warn("Login rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			m.metrics.RecordRateLimited(m.name)
			if err := m.auditLogger.LogAuthentication(ctx, audit.EventTypeAuthRateLimited, nil, username,
				audit.EventStatusDenied, "too many login attempts"); err != nil {
				observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", m.retryAfter))
			httputil.WriteTooManyRequests(w, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// peekUsername reads the username from a JSON body and restores the body
func peekUsername(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Username)
}

// clientIP returns the address the limiter keys on. Forwarding headers count
// only when the direct peer is a trusted proxy; X-Forwarded-For is walked from
// the right so a client cannot prepend its own entries.
func clientIP(r *http.Request, trusted []*net.IPNet) string {
	remote := remoteHost(r)
	if !isTrusted(remote, trusted) {
		return remote
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return remote
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTrusted(host string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
