package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware opens a server span per request, continuing any
// W3C trace context sent by the caller.
func TracingMiddleware(tp trace.TracerProvider) func(http.Handler) http.Handler {
	tr := tp.Tracer("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			reqID := chimw.GetReqID(ctx)

			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			ctx, span := tr.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				w.Header().Set("Trace-Id", sc.TraceID().String())
			}

			r = r.WithContext(ctx)
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.Int("http.status_code", sw.code()),
				attribute.String("request.id", reqID),
				attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
			)
			if sw.code() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.code()))
			}
		})
	}
}
