package nbi

import (
	"context"
	"net/http"
	"strings"

	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// TracingUnaryServerInterceptor names RPC spans "NBI/<service>/<method>"
// and tags them with the request id. It starts a server span itself when
// no stats handler created one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := "NBI/" + service + "/" + method

		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = observability.Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if created {
			span.End()
		}
		return resp, err
	}
}

// TracingMiddleware wraps next in a server span named "HTTP <route>".
func TracingMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.Tracer().Start(r.Context(), "HTTP "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(attribute.String("request_id", reqID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// startSearchSpan opens a child span describing the search a handler is
// about to start.
func startSearchSpan(ctx context.Context, name string, point model.InstallationPoint, radiusKm float64) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.Float64("search.lat", point.Location.Lat),
		attribute.Float64("search.lon", point.Location.Lon),
		attribute.Float64("search.height_m", point.HeightM),
		attribute.Float64("search.radius_km", radiusKm),
	))
}
