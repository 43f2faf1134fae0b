// Package observability provides structured logging, prometheus metrics,
// health checks, and graceful shutdown for the gatehouse services.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler. Operator-visible logs carry
// full error detail; nothing in this package ever writes detail into an
// HTTP response.
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("endpoint", "/login").Info("request handled")
//
// # Metrics
//
// Metrics holds the per-service prometheus collectors. Each binary creates
// its own registry with its own namespace (gatehouse_*, crm_*):
//
//	metrics := observability.NewMetrics("gatehouse", registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("POST", "/login", "303").Inc()
//
// # Health
//
// HealthChecker exposes liveness and readiness probes over the service's
// sql.DB and Redis dependencies.
//
// # Shutdown
//
// ShutdownManager drains the HTTP server and runs registered shutdown
// functions (monitor stop, connection close) within a bounded window.
package observability
