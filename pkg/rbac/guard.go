package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PermissionResolver loads a user's effective permissions
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID int64) (*Grant, error)
}

// Guard decides whether the caller in a request context may run an operation.
// Permissions are read from the resolver on every call; nothing is cached.
type Guard struct {
	resolver PermissionResolver
	policy   Policy
	audit    audit.Logger
	metrics  *observability.Metrics
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithAuditLogger records denials to the given audit logger
func WithAuditLogger(logger audit.Logger) GuardOption {
	return func(g *Guard) { g.audit = logger }
}

// WithMetrics records every decision
func WithMetrics(metrics *observability.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = metrics }
}

// NewGuard creates a guard over the given policy table
func NewGuard(resolver PermissionResolver, policy Policy, opts ...GuardOption) *Guard {
	g := &Guard{
		resolver: resolver,
		policy:   policy,
		audit:    audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks op against the caller bound to ctx.
//
// It returns nil when allowed, an error wrapping apperrors.ErrUnauthorized when
// the caller is unknown or has no role, one wrapping apperrors.ErrForbidden when
// a required permission is missing, and any other error for system failures.
func (g *Guard) Authorize(ctx context.Context, op Operation) error {
	ctx, span := observability.Tracer().Start(ctx, "rbac.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("rbac.operation", string(op)))

	required, declared := g.policy.Required(op)
	if !declared {
		err := fmt.Errorf("no policy declared for operation %q", op)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.RecordAuthzDecision(string(op), observability.ResultError)
		return err
	}

	err := g.check(ctx, op, required)
	switch {
	case err == nil:
		g.metrics.RecordAuthzDecision(string(op), observability.ResultAllowed)
	case apperrors.IsUnauthorized(err):
		g.metrics.RecordAuthzDecision(string(op), observability.ResultDenied)
		span.SetAttributes(attribute.Bool("rbac.denied", true))
	default:
		g.metrics.RecordAuthzDecision(string(op), observability.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission resolution failed")
	}
	return err
}

func (g *Guard) check(ctx context.Context, op Operation, required []string) error {
	if len(required) == 0 {
		return nil
	}

	identity, ok := contextkeys.GetIdentity(ctx)
	if !ok || identity.UserID == 0 {
		return fmt.Errorf("%w: no authenticated identity", apperrors.ErrUnauthorized)
	}

	grant, err := g.resolver.EffectivePermissions(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) || errors.Is(err, ErrNoRole) {
			g.deny(ctx, identity.UserID, op, err.Error())
			return fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
		}
		return fmt.Errorf("failed to resolve permissions for user %d: %w", identity.UserID, err)
	}

	if missing := grant.Missing(required); len(missing) > 0 {
		reason := "missing permissions: " + strings.Join(missing, ", ")
		g.deny(ctx, identity.UserID, op, reason)
		return fmt.Errorf("%w: %s", apperrors.ErrForbidden, reason)
	}
	return nil
}

func (g *Guard) deny(ctx context.Context, userID int64, op Operation, reason string) {
	uid := userID
	if err := g.audit.LogAuthorization(ctx, audit.EventTypeAuthzAccessDenied, &uid,
		audit.ResourceTypeOperation, string(op), audit.EventStatusDenied, reason); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
	}
}
