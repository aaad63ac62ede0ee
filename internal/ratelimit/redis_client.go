package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter backends reported on /health and /metrics.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrRedisDisabled is returned by health checks on a client without Redis.
var ErrRedisDisabled = errors.New("redis is disabled")

// RedisOptions configures the shared limiter store. Rate limit keys are tiny,
// so a small pool is enough for every replica of the service.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	return o
}

// RedisClient is the optional shared store behind the limiter. A disabled
// client keeps every limit in process memory.
type RedisClient struct {
	client *redis.Client
	addr   string
}

// DisabledRedisClient returns a client that never talks to Redis.
func DisabledRedisClient() *RedisClient {
	return &RedisClient{}
}

// NewRedisClient connects to Redis and pings it within ctx. On failure the
// returned client is disabled and the error says why, so callers can retry or
// carry on with in-memory limits.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.Addr == "" {
		return DisabledRedisClient(), nil
	}
	opts = opts.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return DisabledRedisClient(), fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	slog.Info("Rate limit store connected", "backend", BackendRedis, "addr", opts.Addr, "db", opts.DB)
	return &RedisClient{client: client, addr: opts.Addr}, nil
}

// GetClient returns the underlying Redis client, nil when disabled
func (r *RedisClient) GetClient() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// IsEnabled reports whether limits are shared through Redis
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.client != nil
}

// Backend names where limiter state lives
func (r *RedisClient) Backend() string {
	if r.IsEnabled() {
		return BackendRedis
	}
	return BackendMemory
}

// HealthCheck pings Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return ErrRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if !r.IsEnabled() {
		return nil
	}
	return r.client.Close()
}

// Stats describes the store for the metrics endpoint
func (r *RedisClient) Stats() map[string]interface{} {
	stats := map[string]interface{}{"backend": r.Backend()}
	if !r.IsEnabled() {
		return stats
	}

	pool := r.client.PoolStats()
	stats["addr"] = r.addr
	stats["total_conns"] = pool.TotalConns
	stats["idle_conns"] = pool.IdleConns
	stats["timeouts"] = pool.Timeouts
	return stats
}
