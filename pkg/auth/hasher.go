package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/platinummonkey/docket/pkg/observability"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and verifies passwords with a bounded number of
// bcrypt operations in flight.
type PasswordHasher struct {
	cost    int
	sem     *semaphore.Weighted
	metrics *observability.Metrics
}

// NewPasswordHasher creates a hasher. A concurrency below 1 means runtime.NumCPU().
func NewPasswordHasher(cost, concurrency int, metrics *observability.Metrics) *PasswordHasher {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	return &PasswordHasher{
		cost:    cost,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		metrics: metrics,
	}
}

// Hash returns the bcrypt hash of password
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("password hashing unavailable: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	h.metrics.ObservePasswordHash(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A mismatch returns
// ErrInvalidCredentials; anything else is a system failure.
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("password verification unavailable: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	h.metrics.ObservePasswordHash(time.Since(start))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("failed to verify password: %w", err)
	}
}
