package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg := loadConfig()

	want := domain.DefaultConfig()
	want.JWTSecret = "s3cret"
	assert.Equal(t, want.Addr, cfg.Addr)
	assert.Equal(t, want.Backend, cfg.Backend)
	assert.Equal(t, want.LeaseTTL, cfg.LeaseTTL)
	assert.Equal(t, want.AttendanceInterval, cfg.AttendanceInterval)
	assert.Equal(t, want.PingParallelism, cfg.PingParallelism)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RELAY_JWT_SECRET", "prefixed")
	t.Setenv("RELAY_BACKEND", "redis")
	t.Setenv("RELAY_LEASE_TTL", "2m")
	t.Setenv("RELAY_SEND_QUEUE_SIZE", "8")

	cfg := loadConfig()
	assert.Equal(t, "prefixed", cfg.JWTSecret)
	assert.Equal(t, domain.BackendRedis, cfg.Backend)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, 8, cfg.SendQueueSize)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestRunFailsFastOnBusyAdminPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := domain.DefaultConfig()
	cfg.JWTSecret = "secret"
	cfg.Addr = "127.0.0.1:0"
	cfg.AdminAddr = busy.Addr().String()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "relay.db")
	cfg.MetricsInterval = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "failed to listen on "+cfg.AdminAddr)
	case <-time.After(2 * time.Second):
		t.Fatal("run kept going after the admin listener failed")
	}
}
