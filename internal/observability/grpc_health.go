package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so
// orchestrators that probe over gRPC can see readiness.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewGRPCHealthServer listens on addr (e.g. ":9090"). Every service starts
// NOT_SERVING until SetServing is called.
func NewGRPCHealthServer(addr string) (*GRPCHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 5 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCHealthServer{
		server:   srv,
		health:   hs,
		listener: lis,
		logger:   Component("grpc-health"),
	}, nil
}

// Addr returns the bound address
func (g *GRPCHealthServer) Addr() net.Addr {
	return g.listener.Addr()
}

// Serve blocks until Stop is called
func (g *GRPCHealthServer) Serve() error {
	g.logger.Info().Str("addr", g.Addr().String()).Msg("gRPC health server listening")
	if err := g.server.Serve(g.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// SetServing sets the status of a named service; "" is the overall server
func (g *GRPCHealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(service, status)
}

// MarkNotServing flips every service to NOT_SERVING and ignores later updates
func (g *GRPCHealthServer) MarkNotServing() {
	g.health.Shutdown()
}

// Stop drains in-flight probes, or forces the stop once ctx is done
func (g *GRPCHealthServer) Stop(ctx context.Context) {
	g.MarkNotServing()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.server.Stop()
		<-done
	}
}
