package adaptor

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RelayService is the name reported through the gRPC health service.
const RelayService = "relaychat.Relay"

// Admin is the operator-facing gRPC listener. It only carries the standard
// health and reflection services.
type Admin struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger

	mu         sync.Mutex
	subscribed bool
	sweepErr   error
}

func NewAdmin(logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	hs.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Admin{server: s, health: hs, logger: logger}
}

// SetServing records whether the registry's bus subscription is up. The
// relay is reported as serving only while it is and the last sweep passed.
func (a *Admin) SetServing(subscribed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribed = subscribed
	a.publish()
}

// ObserveSweep is meant for Registry.OnSweep: a failed sweep marks the relay
// as not serving until the next good one.
func (a *Admin) ObserveSweep(err error) {
	if err != nil {
		a.logger.Warn("marking relay not serving", zap.Error(err))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepErr = err
	a.publish()
}

func (a *Admin) publish() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if a.subscribed && a.sweepErr == nil {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus(RelayService, status)
}

// Serve blocks until ctx is done or the listener fails.
func (a *Admin) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		a.health.Shutdown()
		a.server.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve admin: %w", err)
		}
		return nil
	}
}
