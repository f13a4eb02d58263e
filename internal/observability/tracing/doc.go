// Package tracing provides OpenTelemetry tracing integration.
//
// The SDK only creates spans; exporter and provider setup is owned by the
// hosting application, which configures the global otel tracer provider.
//
// Example usage:
//
//	import "taskdeck-client/internal/observability/tracing"
//
//	func doCall(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "apiclient.call")
//	    defer span.End()
//	    // ... perform the call ...
//	}
package tracing
