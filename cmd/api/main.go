package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tagihan-wa/internal/billing"
	"github.com/noah-isme/tagihan-wa/internal/common"
	"github.com/noah-isme/tagihan-wa/internal/config"
	"github.com/noah-isme/tagihan-wa/internal/events"
	"github.com/noah-isme/tagihan-wa/internal/health"
	"github.com/noah-isme/tagihan-wa/internal/lock"
	"github.com/noah-isme/tagihan-wa/internal/obs"
	"github.com/noah-isme/tagihan-wa/internal/ratelimit"
	"github.com/noah-isme/tagihan-wa/internal/resilience"
	"github.com/noah-isme/tagihan-wa/internal/schedule"
	"github.com/noah-isme/tagihan-wa/internal/security"
	"github.com/noah-isme/tagihan-wa/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "tagihan")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "tagihan-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = connectRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	var records store.Store
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.RunMigrations {
			if err := store.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("migrate database")
			}
		}
		pool := connectPostgres(ctx, cfg.DatabaseURL, logger)
		defer pool.Close()
		records = store.Postgres{Pool: pool}
	case config.BackendRedis:
		records = store.Redis{Client: redisClient, Prefix: "tagihan:", TTL: cfg.RecordTTL}
	default:
		logger.Warn().Msg("using in-memory store; records are lost on restart")
		records = store.NewMemory()
	}
	if cfg.StoreBackend != config.BackendMemory {
		if metricsEnabled {
			if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
				logger.Fatal().Err(err).Msg("register breaker metrics")
			}
		}
		records = &resilience.Store{
			Next:     records,
			Breaker:  resilience.NewBreaker(resilience.Settings{Dependency: cfg.StoreBackend, Logger: &logger}),
			Attempts: envInt("STORE_RETRY_ATTEMPTS", 3),
			Backoff:  50 * time.Millisecond,
		}
	}

	var locker lock.Locker = &lock.Local{}
	if redisClient != nil {
		locker = lock.Redis{R: redisClient, Prefix: "lock:"}
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	rateLimiter, err := ratelimit.New(cfg.RateLimit, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.RateLimit).Msg("initialise rate limiter")
	}
	limit := ratelimit.Handler{
		Limiter: rateLimiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	bus := &events.Bus{Notifiers: []events.Notifier{
		events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()},
	}}
	if redisClient != nil {
		bus.Sink = events.RedisStream{Client: redisClient, Stream: "tagihan:events", MaxLen: int64(envInt("EVENT_STREAM_MAXLEN", 10000))}
	}

	billingSvc := &billing.Service{
		Store:    records,
		Locker:   locker,
		Validate: billing.NewValidator(),
		Logger:   logger.With().Str("component", "billing").Logger(),
		LockTTL:  cfg.LockTTL,
		Events:   bus,
		Defaults: billing.Defaults{
			Currency:   cfg.DefaultCurrency,
			TaxEnabled: cfg.DefaultTaxEnabled,
			TaxRate:    cfg.DefaultTaxRate,
			Schedule: schedule.Options{
				DownPaymentPercentage: cfg.DownPaymentPercentage,
				DownPaymentDays:       cfg.DownPaymentDays,
				FinalPaymentDays:      cfg.FinalPaymentDays,
			},
		},
	}
	billingHandler := &billing.Handler{Svc: billingSvc, Logger: logger}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(common.MerchantMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.MerchantHeader, common.IdempotencyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"Location", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{
		Enable:                envBool("SECURITY_HEADERS_ENABLED", true),
		EnableHSTS:            envBool("SECURITY_HSTS_ENABLED", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURITY_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURITY_HSTS_INCLUDE_SUBDOMAINS", false),
	}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	checks := map[string]health.Pinger{"store": records}
	if redisClient != nil && cfg.StoreBackend != config.BackendRedis {
		checks["redis"] = health.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	healthHandler := health.Handler{
		Checks:  checks,
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		v.Use(limit.Middleware)
		billingHandler.Mount(v, idem.Middleware)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, release := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer release()
	go func() {
		<-stop.Done()
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func connectRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func connectPostgres(ctx context.Context, url string, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "tagihan-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
