package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreBackend       string
	DatabaseURL        string
	RedisURL           string
	RunMigrations      bool
	CORSAllowedOrigins []string

	DefaultCurrency       string
	DefaultTaxRate        float64
	DefaultTaxEnabled     bool
	DownPaymentPercentage float64
	DownPaymentDays       int
	FinalPaymentDays      int

	IdempotencyTTL  time.Duration
	LockTTL         time.Duration
	RecordTTL       time.Duration
	RateLimit       string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StoreBackend:       strings.ToLower(valueOrDefault(k.String("STORE_BACKEND"), BackendRedis)),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		RunMigrations:      parseBool(valueOrDefault(k.String("RUN_MIGRATIONS"), "true")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		DefaultCurrency:       strings.ToUpper(valueOrDefault(k.String("DEFAULT_CURRENCY"), "IDR")),
		DefaultTaxRate:        parseFloat(k.String("DEFAULT_TAX_RATE"), 11),
		DefaultTaxEnabled:     parseBool(k.String("DEFAULT_TAX_ENABLED")),
		DownPaymentPercentage: parseFloat(k.String("DEFAULT_DOWN_PAYMENT_PERCENT"), 50),
		DownPaymentDays:       parseInt(k.String("DOWN_PAYMENT_DAYS"), 0),
		FinalPaymentDays:      parseInt(k.String("FINAL_PAYMENT_DAYS"), 30),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:         parseDuration(k.String("LOCK_TTL"), "10s"),
		RecordTTL:       parseDuration(k.String("RECORD_TTL"), "0s"),
		RateLimit:       valueOrDefault(k.String("RATE_LIMIT"), "120-M"),
		MaxBodyBytes:    int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		ShutdownTimeout: parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.DefaultTaxRate < 0 || cfg.DefaultTaxRate > 100 {
		return nil, errors.New("DEFAULT_TAX_RATE must be between 0 and 100")
	}
	if cfg.DownPaymentPercentage <= 0 || cfg.DownPaymentPercentage > 100 {
		return nil, errors.New("DEFAULT_DOWN_PAYMENT_PERCENT must be greater than 0 and at most 100")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
