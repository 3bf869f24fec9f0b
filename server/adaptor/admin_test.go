package adaptor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestAdminHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	admin := NewAdmin(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- admin.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: RelayService})
		require.NoError(t, err)
		return res.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	admin.ObserveSweep(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(), "a sweep alone must not report serving before the bus is up")

	admin.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	admin.ObserveSweep(errors.New("ledger unreachable"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	admin.ObserveSweep(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	admin.SetServing(false)
	admin.ObserveSweep(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
