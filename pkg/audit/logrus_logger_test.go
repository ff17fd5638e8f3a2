package audit

import (
	"context"
	"testing"

	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusLogger_LogAuthentication(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)

	err := logger.LogAuthentication(context.Background(), EventTypeAuthLoginFailed, nil, "alice", EventStatusFailure, "invalid credentials")
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "invalid credentials", entry.Message)
	assert.Equal(t, true, entry.Data["audit"])
	assert.Equal(t, "auth.login_failed", entry.Data["event_type"])
	assert.Equal(t, "alice", entry.Data["username"])
	assert.NotContains(t, entry.Data, "user_id")
}

func TestLogrusLogger_PicksUpContext(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)

	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	ctx = contextkeys.WithIdentity(ctx, contextkeys.Identity{UserID: 9, Username: "bob"})

	err := logger.LogDataMutation(ctx, EventTypeDocumentDelete, nil, ResourceTypeDocument, "3", nil, "document deleted")
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, int64(9), entry.Data["user_id"])
	assert.Equal(t, "bob", entry.Data["username"])
	assert.Equal(t, "req-42", entry.Data["request_id"])
	assert.Equal(t, "document", entry.Data["resource_type"])
	assert.Equal(t, "3", entry.Data["resource_id"])
}

func TestLogrusLogger_Authorization(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)

	uid := int64(5)
	err := logger.LogAuthorization(context.Background(), EventTypeAuthzAccessDenied, &uid, ResourceTypeOperation, "documents.create", EventStatusDenied, "missing permissions")
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "denied", entry.Data["status"])
	assert.Equal(t, int64(5), entry.Data["user_id"])
}

func TestFromContext_DefaultsToNoOp(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))

	base, _ := test.NewNullLogger()
	real := NewLogrusLogger(base)
	assert.Same(t, real, FromContext(WithLogger(context.Background(), real)))
}
