package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: 7, Username: "alice", Role: "viewer"})

	id, ok := GetIdentity(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, int64(7), GetUserID(ctx))
}

func TestWithoutIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: 7})
	ctx = WithoutIdentity(ctx)

	_, ok := GetIdentity(ctx)
	assert.False(t, ok)
	assert.Equal(t, int64(0), GetUserID(ctx))
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "req-1", GetRequestID(WithRequestID(context.Background(), "req-1")))
}
