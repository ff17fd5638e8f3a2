package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured logrus entries
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates an audit logger on top of a logrus logger.
// A nil logger falls back to the logrus standard logger.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger}
}

// Log logs an audit event
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.UserID == nil {
		if id, ok := contextkeys.GetIdentity(ctx); ok && id.UserID != 0 {
			uid := id.UserID
			event.UserID = &uid
			if event.Username == "" {
				event.Username = id.Username
			}
		}
	}

	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := l.logger.WithFields(fields).WithTime(event.Timestamp)
	switch event.Status {
	case EventStatusSuccess:
		entry.Info(event.Message)
	default:
		entry.Warn(event.Message)
	}
	return nil
}

// LogAuthentication logs an authentication event
func (l *LogrusLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := newEvent(eventType, status, message)
	event.UserID = userID
	event.Username = username
	event.ResourceType = ResourceTypeUser
	return l.Log(ctx, event)
}

// LogAuthorization logs an authorization event
func (l *LogrusLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := newEvent(eventType, status, message)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	return l.Log(ctx, event)
}

// LogDataMutation logs a data mutation event
func (l *LogrusLogger) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := newEvent(eventType, EventStatusSuccess, message)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	return l.Log(ctx, event)
}

// Close is a no-op; logrus owns its output
func (l *LogrusLogger) Close() error {
	return nil
}
