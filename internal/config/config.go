// Package config loads service settings from the environment, after an
// optional .env file has been applied.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	GinMode         string
	LogLevel        string
	ModelPath       string
	FeaturesPath    string
	DefaultDataset  string
	SessionTTL      time.Duration
	MaxUploadBytes  int64
	RateLimitPerMin int
	ScanLimitPerMin int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CORSOrigins     []string
	EnableHSTS      bool
}

// Load reads .env when present and then the process environment. Variables
// already set in the environment win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only
func FromEnv() (*Config, error) {
	sessionTTL, err := parseDuration("SESSION_TTL", "30m")
	if err != nil {
		return nil, err
	}
	maxUploadMB, err := parseInt("MAX_UPLOAD_MB", 20)
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseInt("RATE_LIMIT_PER_MIN", 60)
	if err != nil {
		return nil, err
	}
	scanLimit, err := parseInt("SCAN_RATE_LIMIT_PER_MIN", 10)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "release"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ModelPath:       getEnv("MODEL_PATH", "churn_model.json"),
		FeaturesPath:    getEnv("FEATURES_PATH", ""),
		DefaultDataset:  getEnv("DEFAULT_DATASET", "WA_Fn-UseC_-Telco-Customer-Churn.csv"),
		SessionTTL:      sessionTTL,
		MaxUploadBytes:  int64(maxUploadMB) << 20,
		RateLimitPerMin: rateLimit,
		ScanLimitPerMin: scanLimit,
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         redisDB,
		CORSOrigins:     splitCSV(getEnv("CORS_ORIGINS", "*")),
		EnableHSTS:      strings.EqualFold(getEnv("ENABLE_HSTS", "false"), "true"),
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if cfg.RateLimitPerMin <= 0 || cfg.ScanLimitPerMin <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MIN and SCAN_RATE_LIMIT_PER_MIN must be positive")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("MODEL_PATH is required")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AllowAllOrigins reports whether CORS_ORIGINS contains the wildcard
func (c *Config) AllowAllOrigins() bool {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
