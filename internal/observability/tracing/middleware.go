package tracing

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// newResponseWriter creates a new responseWriter with default status code 200.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ObserveFunc receives the outcome of every request handled by Middleware.
type ObserveFunc func(method, path, status string, duration time.Duration)

// Middleware creates OpenTelemetry tracing middleware for HTTP handlers.
// It extracts trace context from incoming request headers, starts a server
// span, exposes the trace ID as X-Trace-Id and marks 5xx responses as errors.
//
// Example usage:
//
//	mux := http.NewServeMux()
//	mux.Handle("/health", healthHandler)
//	handler := tracing.Middleware(mux)
func Middleware(next http.Handler) http.Handler {
	return ObservedMiddleware(next, nil)
}

// ObservedMiddleware is Middleware that also reports each request to observe,
// typically metrics.RecordHTTPRequest.
func ObservedMiddleware(next http.Handler, observe ObserveFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(
			r.Context(),
			propagation.HeaderCarrier(r.Header),
		)

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		w.Header().Set("X-Trace-Id", span.SpanContext().TraceID().String())

		rw := newResponseWriter(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		span.SetAttributes(
			attribute.Int("http.status_code", rw.statusCode),
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)

		if rw.statusCode >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}

		if observe != nil {
			observe(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode), time.Since(start))
		}
	})
}
