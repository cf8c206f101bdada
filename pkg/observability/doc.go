// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and health probes for the campuscms service.
//
// The Logger wraps log/slog with a JSON handler and carries request-scoped
// fields (request ID, user ID) pulled from the context. Metrics are
// registered on a dedicated Prometheus registry and exposed on the health
// port. Tracing is optional and enabled by configuration.
package observability
