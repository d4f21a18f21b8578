package grpcx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing and request id interceptors.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter keeps a service's gRPC health status in line with a
// dependency check.
type HealthReporter struct {
	Server  *health.Server
	Service string
	Check   func(context.Context) error
	Every   time.Duration
	Logger  *zap.Logger
}

func (h HealthReporter) Run(ctx context.Context) {
	every := h.Every
	if every <= 0 {
		every = 10 * time.Second
	}
	h.report(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Server.Shutdown()
			return
		case <-ticker.C:
			h.report(ctx)
		}
	}
}

func (h HealthReporter) report(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.Check != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Check(pctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if h.Logger != nil {
				h.Logger.Warn("health check failed", zap.String("grpc_service", h.Service), zap.Error(err))
			}
		}
	}
	h.Server.SetServingStatus(h.Service, status)
	h.Server.SetServingStatus("", status)
}

// HealthCheck asks a remote gRPC health service whether service is serving.
func HealthCheck(conn grpc.ClientConnInterface, service string) func(context.Context) error {
	client := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", service, resp.GetStatus())
		}
		return nil
	}
}
