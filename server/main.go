package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ponyo877/relaychat/server/adaptor"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/repository"
	"github.com/ponyo877/relaychat/server/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	addrKey               = "addr"
	adminAddrKey          = "admin_addr"
	backendKey            = "backend"
	redisURLKey           = "redis_url"
	sqlitePathKey         = "sqlite_path"
	jwtSecretKey          = "jwt_secret"
	leaseTTLKey           = "lease_ttl"
	attendanceIntervalKey = "attendance_interval"
	publicURLKey          = "public_url"
	allowedOriginsKey     = "allowed_origins"
	logLevelKey           = "log_level"
	metricsIntervalKey    = "metrics_interval"
	sendQueueSizeKey      = "send_queue_size"
	pingParallelismKey    = "ping_parallelism"
)

var rootCmd = &cobra.Command{
	Use:           "relay-server",
	Short:         "Room based chat relay over WebSocket",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func init() {
	d := domain.DefaultConfig()
	flags := rootCmd.Flags()
	flags.String("addr", d.Addr, "HTTP listen address")
	flags.String("admin-addr", d.AdminAddr, "gRPC admin listen address, empty to disable")
	flags.String("backend", string(d.Backend), "room ledger and bus backend: redis or local")
	flags.String("redis-url", d.RedisURL, "Redis URL for the redis backend")
	flags.String("sqlite-path", d.SQLitePath, "SQLite database for the local backend")
	flags.String("jwt-secret", "", "secret used to sign identity tokens")
	flags.Duration("lease-ttl", d.LeaseTTL, "how long a room keeps its owner without members")
	flags.Duration("attendance-interval", d.AttendanceInterval, "time between keepalive sweeps")
	flags.String("public-url", d.PublicURL, "base URL used for room links")
	flags.StringSlice("allowed-origins", nil, "browser origins allowed to connect, * for any")
	flags.String("log-level", d.LogLevel, "debug, info, warn or error")
	flags.Duration("metrics-interval", d.MetricsInterval, "time between metric reports, 0 to disable")
	flags.Int("send-queue-size", d.SendQueueSize, "outgoing messages buffered per connection")
	flags.Int("ping-parallelism", d.PingParallelism, "concurrent pings during a sweep")

	for _, key := range []string{
		addrKey, adminAddrKey, backendKey, redisURLKey, sqlitePathKey, jwtSecretKey,
		leaseTTLKey, attendanceIntervalKey, publicURLKey, allowedOriginsKey, logLevelKey,
		metricsIntervalKey, sendQueueSizeKey, pingParallelismKey,
	} {
		viper.BindPFlag(key, flags.Lookup(strings.ReplaceAll(key, "_", "-")))
	}
	viper.SetEnvPrefix("relay")
	viper.AutomaticEnv()
	// JWT_SECRET is accepted without the prefix as well.
	viper.BindEnv(jwtSecretKey, "RELAY_JWT_SECRET", "JWT_SECRET")
}

func loadConfig() domain.Config {
	return domain.Config{
		Addr:               viper.GetString(addrKey),
		AdminAddr:          viper.GetString(adminAddrKey),
		Backend:            domain.Backend(viper.GetString(backendKey)),
		RedisURL:           viper.GetString(redisURLKey),
		SQLitePath:         viper.GetString(sqlitePathKey),
		JWTSecret:          viper.GetString(jwtSecretKey),
		LeaseTTL:           viper.GetDuration(leaseTTLKey),
		AttendanceInterval: viper.GetDuration(attendanceIntervalKey),
		PublicURL:          viper.GetString(publicURLKey),
		AllowedOrigins:     viper.GetStringSlice(allowedOriginsKey),
		LogLevel:           viper.GetString(logLevelKey),
		MetricsInterval:    viper.GetDuration(metricsIntervalKey),
		SendQueueSize:      viper.GetInt(sendQueueSizeKey),
		PingParallelism:    viper.GetInt(pingParallelismKey),
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// backend opens the ledger and the bus and returns a function releasing them.
func backend(cfg domain.Config, node string, logger *zap.Logger) (usecase.Ledger, usecase.Bus, func(), error) {
	switch cfg.Backend {
	case domain.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		return repository.NewRedisLedger(client), repository.NewRedisBus(client, node, logger), func() { client.Close() }, nil
	default:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repository.NewSQLiteLedger(db), repository.NewMemoryBus(node, logger), func() { db.Close() }, nil
	}
}

func run(ctx context.Context, cfg domain.Config, logger *zap.Logger) error {
	node := uuid.NewString()
	logger = logger.With(zap.String("node", node))

	ledger, bus, release, err := backend(cfg, node, logger)
	if err != nil {
		return err
	}
	defer release()

	registry := usecase.NewRegistry(cfg, ledger, bus, adaptor.NewJWTCodec(cfg.JWTSecret, 0), logger)
	admin := adaptor.NewAdmin(logger)
	registry.OnSweep(admin.ObserveSweep)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: adaptor.NewAdaptor(ctx, registry, cfg, logger).Handler(),
	}

	var lis net.Listener
	if cfg.AdminAddr != "" {
		lis, err = net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.AdminAddr, err)
		}
	}

	g := pool.New().WithContext(ctx).WithCancelOnError()
	g.Go(func(ctx context.Context) error {
		registry.Run(ctx)
		return nil
	})
	g.Go(func(ctx context.Context) error {
		select {
		case <-registry.Ready():
			admin.SetServing(true)
		case <-ctx.Done():
		}
		return nil
	})
	if cfg.MetricsInterval > 0 {
		g.Go(func(ctx context.Context) error {
			registry.Metrics().Report(ctx, cfg.MetricsInterval, os.Stderr)
			return nil
		})
	}
	if lis != nil {
		g.Go(func(ctx context.Context) error {
			logger.Info("admin listening", zap.String("addr", cfg.AdminAddr))
			return admin.Serve(ctx, lis)
		})
	}
	g.Go(func(ctx context.Context) error {
		logger.Info("relay listening", zap.String("addr", cfg.Addr), zap.String("backend", string(cfg.Backend)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	})
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env:", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
