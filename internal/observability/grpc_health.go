package observability

import (
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HealthServer exposes grpc.health.v1.Health with one service entry per engine kind.
// The empty service name reports overall process health.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewHealthServer creates a gRPC health server. Every named service starts NOT_SERVING.
func NewHealthServer(logger zerolog.Logger, services ...string) *HealthServer {
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 5 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, s := range services {
		hs.SetServingStatus(s, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &HealthServer{
		server: srv,
		health: hs,
		logger: logger.With().Str("component", "grpc_health").Logger(),
	}
}

// SetServing flips the status of one service.
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// ObserveEngineLoad marks the engine kind SERVING once any engine of that kind loads.
// A failed load leaves the status as it was.
func (h *HealthServer) ObserveEngineLoad(kind, key string, elapsed time.Duration, err error) {
	if err != nil {
		return
	}
	h.SetServing(kind, true)
	h.logger.Debug().Str("engine", kind).Str("key", key).Msg("Engine marked serving")
}

// Serve accepts connections on lis until Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return h.server.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains open RPCs.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
