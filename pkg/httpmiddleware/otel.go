package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryProvider supplies the providers used for instrumentation.
type TelemetryProvider interface {
	MeterProvider() metric.MeterProvider
	TracerProvider() trace.TracerProvider
}

// Instrument wraps handlers with otelhttp server spans and metrics. Span
// names use the route template so raw IDs never reach span names.
func Instrument(service string, find RouteFinder, t TelemetryProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := find(r); route != "" {
					return r.Method + " " + route
				}
				return r.Method
			}),
		)
	}
}

// Labeler adds the http.route attribute to otelhttp metrics and the current
// span. It must run inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route := find(r); route != "" {
				attr := attribute.String("http.route", route)
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(attr)
				}
				trace.SpanFromContext(r.Context()).SetAttributes(attr)
			}
			next.ServeHTTP(w, r)
		})
	}
}
