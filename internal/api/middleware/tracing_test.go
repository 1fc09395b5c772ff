package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/motis-project/prima-dispatch/internal/api/middleware"
)

// captureSpans installs an in-memory exporter as the global tracer provider
// for the duration of the test.
func captureSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return exporter
}

func tracedRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tracing("dispatch-test"))
	r.Post("/v1/taxi/bookings/{requestId}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func TestTracingNamesSpanAfterRoutePattern(t *testing.T) {
	exporter := captureSpans(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/taxi/bookings/17/cancel", http.NoBody)
	tracedRouter(http.StatusNoContent).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /v1/taxi/bookings/{requestId}/cancel", spans[0].Name)

	attrs := make(map[string]any)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "/v1/taxi/bookings/{requestId}/cancel", attrs["http.route"])
	assert.Equal(t, int64(http.StatusNoContent), attrs["http.response.status_code"])
}

func TestTracingMarksServerErrors(t *testing.T) {
	exporter := captureSpans(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/taxi/bookings/17/cancel", http.NoBody)
	tracedRouter(http.StatusInternalServerError).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTracingContinuesPropagatedTrace(t *testing.T) {
	exporter := captureSpans(t)
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	req := httptest.NewRequest(http.MethodPost, "/v1/taxi/bookings/17/cancel", http.NoBody)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	tracedRouter(http.StatusNoContent).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
}
