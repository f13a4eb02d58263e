// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the SDK.
//
// Key features:
//   - JSON and text output formats
//   - Call ID propagation
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "taskdeck-client/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("client started", slog.String("version", "1.0"))
//	}
package logging
