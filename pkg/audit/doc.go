// Package audit records security-relevant events: logins, authorization
// denials, and mutations of users, roles, permissions and documents.
//
// # Usage Example
//
// Log a failed login:
//
//	logger.LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, nil, "alice",
//		audit.EventStatusFailure, "invalid credentials")
//
// Log a document deletion:
//
//	logger.LogDataMutation(ctx, audit.EventTypeDocumentDelete, &userID,
//		audit.ResourceTypeDocument, "42", nil, "document deleted")
//
// Events are written through logrus as structured entries tagged audit=true,
// so they ship with the rest of the service logs.
package audit
