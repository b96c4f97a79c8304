package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/alecgard/toolshelf/internal/apperr"
)

const tracerName = "github.com/alecgard/toolshelf"

// StartSpan starts a child span of whatever ctx carries.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it. Expected outcomes (validation,
// authorization, not found, conflict) are tagged but do not mark the span
// failed.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		kind := apperr.KindOf(err)
		span.SetAttributes(attribute.String("error.kind", kind.String()))
		if kind == apperr.KindUnexpected || kind == apperr.KindUnavailable {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// HTTPMiddleware continues an incoming W3C trace (traceparent header) and
// wraps the request in a server span. name derives the span name after the
// handler ran, so routers can report their matched pattern.
func HTTPMiddleware(name func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(tracerName).Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			next.ServeHTTP(w, r.WithContext(ctx))
			if n := name(r.WithContext(ctx)); n != "" {
				span.SetName(r.Method + " " + n)
				span.SetAttributes(attribute.String("http.route", n))
			}
		})
	}
}
