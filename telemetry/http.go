// HTTP instrumentation for distributed tracing.
//
// TracingMiddleware wraps the inbound server so every request gets a
// span (and W3C trace context from upstream callers is continued).
// NewTracedHTTPClient builds the outbound clients used by the model and
// object store clients; trace context is injected automatically.
//
// Both are safe to use when no tracer provider is installed; they fall
// back to no-op tracers.

package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddleware returns HTTP middleware that creates a span for
// each request. Health probes are excluded.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	excluded := map[string]bool{
		"/health": true,
	}

	opts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewTracedHTTPClient creates an HTTP client that propagates trace
// context to downstream services. The client uses a pooled transport
// and should be reused across requests.
func NewTracedHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}
