// @title ChurnGuard API
// @version 1.0
// @description Customer churn scoring, portfolio analytics and retention planning.
// @BasePath /
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aysenursarun/ChurnGuard-AI/internal/config"
	"github.com/aysenursarun/ChurnGuard-AI/internal/frontend"
	"github.com/aysenursarun/ChurnGuard-AI/internal/model"
	"github.com/aysenursarun/ChurnGuard-AI/internal/monitoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/ratelimit"
	"github.com/aysenursarun/ChurnGuard-AI/internal/resilience"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger()
	appLogger.SetLevel(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)
	gin.SetMode(cfg.GinMode)

	appMetrics := monitoring.NewMetrics()

	// A missing model leaves the service up; scoring routes answer 503
	engine := loadEngine(cfg, appLogger)

	sessions := session.NewStore(cfg.SessionTTL, time.Minute)
	defer sessions.Close()

	redisClient := connectRedis(cfg, appLogger)
	defer redisClient.Close()

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimit:         cfg.RateLimitPerMin,
		ScanLimit:       cfg.ScanLimitPerMin,
		CleanupInterval: time.Hour,
		Breaker:         resilience.DefaultCircuitBreakerConfig(),
	}, appMetrics)
	defer limiter.Close()

	dashboard, err := frontend.GetDistFS()
	if err != nil {
		slog.Error("Failed to load embedded dashboard", "error", err)
		os.Exit(1)
	}

	server, err := NewServer(cfg, engine, sessions, limiter, appMetrics, appLogger, dashboard)
	if err != nil {
		slog.Error("Failed to build server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.SystemLogger("server_start", "listening on "+cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.SystemLogger("server_shutdown", "signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server exited")
}

func loadEngine(cfg *config.Config, logger *monitoring.Logger) *scoring.Engine {
	artifacts, err := model.Load(cfg.ModelPath, cfg.FeaturesPath)
	if err != nil {
		logger.Error("Model artifacts unavailable", "model_path", cfg.ModelPath, "features_path", cfg.FeaturesPath, "error", err)
		return scoring.Unavailable(err)
	}

	info := artifacts.Info()
	logger.Info("Model loaded",
		"name", info.Name,
		"version", info.Version,
		"kind", info.Kind,
		"features", artifacts.Schema().Len(),
	)
	return scoring.NewEngine(artifacts)
}

// connectRedis retries the initial connection a few times. Failure leaves the
// limiter on its in-memory buckets.
func connectRedis(cfg *config.Config, logger *monitoring.Logger) *ratelimit.RedisClient {
	if cfg.RedisAddr == "" {
		return ratelimit.DisabledRedisClient()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := ratelimit.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client := ratelimit.DisabledRedisClient()
	err := resilience.RetryWithBackoff(ctx, 3, 500*time.Millisecond, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var err error
		client, err = ratelimit.NewRedisClient(pingCtx, opts)
		return err
	})
	if err != nil {
		logger.SystemLogger("redis_unavailable", err.Error())
	}
	return client
}
