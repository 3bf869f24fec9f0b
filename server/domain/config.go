package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Backend string

const (
	BackendRedis Backend = "redis"
	BackendLocal Backend = "local"
)

type Config struct {
	Addr               string
	AdminAddr          string
	Backend            Backend
	RedisURL           string
	SQLitePath         string
	JWTSecret          string
	LeaseTTL           time.Duration
	AttendanceInterval time.Duration
	PublicURL          string
	AllowedOrigins     []string
	LogLevel           string
	MetricsInterval    time.Duration
	SendQueueSize      int
	PingParallelism    int
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		AdminAddr:          ":9090",
		Backend:            BackendLocal,
		RedisURL:           "redis://localhost:6379/0",
		SQLitePath:         "relaychat.db",
		LeaseTTL:           DefaultLeaseTTL,
		AttendanceInterval: DefaultAttendance,
		PublicURL:          "http://localhost:8080",
		LogLevel:           "info",
		MetricsInterval:    time.Minute,
		SendQueueSize:      64,
		PingParallelism:    32,
	}
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	switch c.Backend {
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis url is required for the redis backend")
		}
	case BackendLocal:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.LeaseTTL <= 0 {
		return errors.New("lease ttl must be positive")
	}
	if c.AttendanceInterval <= 0 {
		return errors.New("attendance interval must be positive")
	}
	if c.AttendanceInterval >= c.LeaseTTL {
		return fmt.Errorf("attendance interval %s must be shorter than lease ttl %s", c.AttendanceInterval, c.LeaseTTL)
	}
	if c.SendQueueSize <= 0 {
		return errors.New("send queue size must be positive")
	}
	if c.PingParallelism <= 0 {
		return errors.New("ping parallelism must be positive")
	}
	return nil
}

// RoomURL is the shareable link for a room.
func (c Config) RoomURL(room string) string {
	return strings.TrimRight(c.PublicURL, "/") + "/" + room
}
