package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the readiness checks through grpc.health.v1.Health
// for orchestrators that health-check over gRPC.
type GRPCHealthServer struct {
	server *grpc.Server
	health *health.Server
	checks []NamedCheck
}

// NewGRPCHealthServer creates a health server; status starts as NOT_SERVING
// until the first Refresh.
func NewGRPCHealthServer(checks ...NamedCheck) *GRPCHealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	return &GRPCHealthServer{server: s, health: hs, checks: checks}
}

// Refresh runs the checks once and publishes the result
func (g *GRPCHealthServer) Refresh(ctx context.Context) bool {
	_, ok := RunChecks(ctx, g.checks)

	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(serviceName, status)
	return ok
}

// Serve listens on port and refreshes the status every interval until ctx is done
func (g *GRPCHealthServer) Serve(ctx context.Context, port int, interval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC health on port %d: %w", port, err)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			g.Refresh(ctx)
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	logger := GetLogger()
	logger.Info().Int("port", port).Msg("gRPC health server listening")
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}
