package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installExporter routes the package tracer to an in-memory exporter for
// the duration of the test.
func installExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevProvider := otel.GetTracerProvider()
	prevTracer := tracer
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(TracerName)
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		tracer = prevTracer
	})
	return exporter
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_Spans(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantError bool
	}{
		{name: "metrics scrape", path: "/metrics", status: http.StatusOK},
		{name: "unknown path", path: "/nope", status: http.StatusNotFound},
		{name: "degraded health", path: "/health/acquisition", status: http.StatusServiceUnavailable, wantError: true},
		{name: "handler fault", path: "/metrics", status: http.StatusInternalServerError, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := installExporter(t)

			rec := httptest.NewRecorder()
			Middleware(statusHandler(tt.status)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name != "GET "+tt.path {
				t.Errorf("span name = %q", span.Name)
			}
			if span.SpanKind.String() != "server" {
				t.Errorf("span kind = %v, want server", span.SpanKind)
			}
			if v, ok := attr(span.Attributes, "http.status_code"); !ok || v.AsInt64() != int64(tt.status) {
				t.Errorf("http.status_code = %v", v.AsInt64())
			}
			if v, ok := attr(span.Attributes, "http.path"); !ok || v.AsString() != tt.path {
				t.Errorf("http.path = %q", v.AsString())
			}

			_, flagged := attr(span.Attributes, "error")
			if flagged != tt.wantError {
				t.Errorf("error attribute present = %v, want %v", flagged, tt.wantError)
			}
			if tt.wantError && span.Status.Code != codes.Error {
				t.Errorf("span status = %v, want error", span.Status.Code)
			}
			if !tt.wantError && span.Status.Code == codes.Error {
				t.Errorf("span unexpectedly marked as error")
			}
		})
	}
}

func TestMiddleware_TraceHeader(t *testing.T) {
	exporter := installExporter(t)

	rec := httptest.NewRecorder()
	Middleware(statusHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	got := rec.Header().Get("X-Trace-Id")
	if got == "" {
		t.Fatal("X-Trace-Id header not set")
	}
	if want := exporter.GetSpans()[0].SpanContext.TraceID().String(); got != want {
		t.Errorf("X-Trace-Id = %s, want %s", got, want)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	exporter := installExporter(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	var inner string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, span := GetTracer().Start(r.Context(), "inner")
		inner = span.SpanContext().TraceID().String()
		span.End()
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if inner != traceID {
		t.Errorf("inner span trace = %s, want %s", inner, traceID)
	}
	for _, s := range exporter.GetSpans() {
		if s.SpanContext.TraceID().String() != traceID {
			t.Errorf("span %q left the incoming trace", s.Name)
		}
	}
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	if rw.statusCode != http.StatusOK {
		t.Errorf("default status = %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusAccepted)
	if rw.statusCode != http.StatusAccepted {
		t.Errorf("captured status = %d", rw.statusCode)
	}
}

func TestObservedMiddleware_ReportsRequest(t *testing.T) {
	installExporter(t)

	var gotMethod, gotPath, gotStatus string
	var gotDuration time.Duration
	observe := func(method, path, status string, d time.Duration) {
		gotMethod, gotPath, gotStatus, gotDuration = method, path, status, d
	}

	handler := ObservedMiddleware(statusHandler(http.StatusServiceUnavailable), observe)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/acquisition", nil))

	if gotMethod != "GET" || gotPath != "/health/acquisition" || gotStatus != "503" {
		t.Errorf("unexpected observation: %s %s %s", gotMethod, gotPath, gotStatus)
	}
	if gotDuration < 0 {
		t.Errorf("negative duration %v", gotDuration)
	}
}

func TestEndSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tr := tp.Tracer(TracerName)

	_, ok := tr.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tr.Start(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Errorf("expected error status, got %v %q", spans[1].Status.Code, spans[1].Status.Description)
	}
	if len(spans[1].Events) == 0 {
		t.Error("expected recorded error event")
	}
}
