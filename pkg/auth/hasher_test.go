package auth

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost, 2, nil)
	ctx := context.Background()

	hash, err := hasher.Hash(ctx, "s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, hasher.Compare(ctx, hash, "s3cret!"))

	err = hasher.Compare(ctx, hash, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestPasswordHasher_UsesConfiguredCost(t *testing.T) {
	hasher := NewPasswordHasher(BcryptCost, 1, nil)

	hash, err := hasher.Hash(context.Background(), "s3cret!")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)
}

func TestPasswordHasher_MalformedHashIsSystemError(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost, 1, nil)

	err := hasher.Compare(context.Background(), "not-a-hash", "pw")
	require.Error(t, err)
	assert.False(t, apperrors.IsUnauthorized(err))
}

func TestPasswordHasher_HonorsContextWhenSaturated(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost, 1, nil)
	require.NoError(t, hasher.sem.Acquire(context.Background(), 1))
	defer hasher.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := hasher.Hash(ctx, "s3cret!")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
