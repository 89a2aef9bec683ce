package nbi

import (
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer builds a gRPC server exposing svc and the standard health
// service. metrics may be nil. The returned health server reports the
// visibility service as serving; callers flip it on shutdown.
func NewGRPCServer(svc *VisibilityService, metrics *observability.NBICollector, log logging.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if metrics != nil {
		interceptors = append(interceptors, metrics.UnaryServerInterceptor())
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)
	server := grpc.NewServer(serverOpts...)

	RegisterVisibilityServiceServer(server, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(VisibilityServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return server, hs
}
