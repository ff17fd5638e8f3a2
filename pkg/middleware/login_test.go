package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, errors.New("redis: connection refused")
}

func loginRequest(username, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"`+username+`","password":"pw"}`))
	req.RemoteAddr = ip + ":5555"
	return req
}

func TestLoginRateLimitMiddleware(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	var bodies []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	})
	handler := NewLoginRateLimitMiddleware(NewRateLimiter(config), "memory", config, metrics, nil).Handler(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("alice", "192.0.2.1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("alice", "192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other users and other clients have their own budget
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("bob", "192.0.2.1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("alice", "192.0.2.2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The handler still sees the full body
	require.NotEmpty(t, bodies)
	assert.Contains(t, bodies[0], `"password":"pw"`)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("memory")))
}

func TestLoginRateLimitMiddleware_IgnoresSpoofedForwarding(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewLoginRateLimitMiddleware(NewRateLimiter(config), "memory", config, nil, nil).Handler(next)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := loginRequest("alice", "192.0.2.1")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestLoginRateLimitMiddleware_TrustedProxy(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewLoginRateLimitMiddleware(NewRateLimiter(config), "memory", config, nil, nil,
		WithTrustedProxies(trusted)).Handler(next)

	send := func(client string) int {
		req := loginRequest("alice", "10.0.0.5")
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Clients behind the proxy get separate budgets
	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
	// A client prepending a fake hop is still keyed on the address the proxy saw
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.9, 203.0.113.2"))
}

func TestLoginRateLimitMiddleware_FailsOpen(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	NewLoginRateLimitMiddleware(brokenLimiter{}, "redis", nil, nil, nil).Handler(next).ServeHTTP(rec, loginRequest("alice", "192.0.2.1"))
	assert.True(t, called)
}
