// Package observability provides observability infrastructure for the client
// SDK, including structured logging, Prometheus metrics, and OpenTelemetry
// tracing.
//
// This package centralizes observability concerns to enable:
//   - Call correlation across log entries
//   - Structured logging with context propagation
//   - Prometheus metrics for monitoring
//   - Span creation around outbound requests
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - tracing: OpenTelemetry tracing integration
//
// Metrics are registered per package next to the code they observe
// (see internal/apiclient/metrics.go and internal/realtime/metrics.go).
package observability
