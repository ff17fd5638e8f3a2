// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown and OpenTelemetry setup for docket.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("document uploaded")
//
// Handlers pull a request-scoped logger (request_id, user_id) from context:
//
//	observability.FromContext(r.Context()).WithError(err).Error("upload failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuthzDecision("documents.create", observability.ResultDenied)
//
// A nil *Metrics is accepted everywhere and records nothing, which keeps
// services usable in tests without a registry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, objectStore, version)
//	observability.RegisterHealthRoutes(opsMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
