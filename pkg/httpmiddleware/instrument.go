package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry supplies the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

var probePaths = map[string]struct{}{
	"/livez":  {},
	"/readyz": {},
}

// IsProbe reports whether r targets a health endpoint.
func IsProbe(r *http.Request) bool {
	_, ok := probePaths[r.URL.Path]
	return ok
}

// Instrument traces and measures every request except health probes.
func Instrument(service string, m Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithFilter(func(r *http.Request) bool { return !IsProbe(r) }),
		)
	}
}

// Labeler adds the matched route to the otelhttp metric labels and renames
// the server span after it. It must run inside Instrument.
func Labeler() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			route := RoutePattern(r)
			if route == "" {
				return
			}
			if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				l.Add(attribute.String("http.route", route))
			}
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)
		})
	}
}
