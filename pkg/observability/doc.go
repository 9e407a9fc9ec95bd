// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("club_id", clubID).Info("club created")
//
// Request-scoped loggers carry request, member and trace ids:
//
//	observability.FromContext(ctx).Warn("authorization denied")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuthzDecision("approve", "invoice", false)
//
// All recording helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//	ctx, span := observability.Tracer().Start(ctx, "approval.approve")
//	defer span.End()
package observability
