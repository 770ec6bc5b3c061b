// Package tracing holds the OpenTelemetry tracer of the pipeline.
//
// Each acquisition request gets an "acquire" span with one "strategy <name>"
// child per strategy tried. HTTP endpoints are wrapped with Middleware or
// ObservedMiddleware, which continue W3C Trace Context from the caller.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "acquire")
//	defer func() { tracing.EndSpan(span, err) }()
package tracing
