package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paygate/internal/config"
	"github.com/noah-isme/paygate/internal/health"
	"github.com/noah-isme/paygate/internal/obs"
	"github.com/noah-isme/paygate/internal/payment"
	"github.com/noah-isme/paygate/internal/ratelimit"
	"github.com/noah-isme/paygate/internal/resilience"
	"github.com/noah-isme/paygate/internal/security"
	"github.com/noah-isme/paygate/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	namespace := cfg.Obs.MetricsNamespace
	obs.MustRegisterDomainMetrics(namespace, nil)
	resilience.MustRegisterMetrics(namespace, nil)
	httpMetrics := obs.NewHTTPMetrics(namespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "paygate",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
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

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	httpClient := transport.NewHTTPClient(cfg.HTTPClient.Timeout)
	pool := &resilience.HostPool{New: func(host string) resilience.HTTPClient {
		breaker := resilience.NewBreaker(host, cfg.HTTPClient.BreakerMinRequests, cfg.HTTPClient.BreakerFailureRatio, cfg.HTTPClient.BreakerOpenFor).
			WithLogger(logger)
		return resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			MaxAttempts: cfg.HTTPClient.MaxAttempts,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     cfg.HTTPClient.Timeout,
		}
	}}

	factory := payment.NewFactory(payment.DefaultCredentials(*cfg), transport.New(pool), logger)
	paymentHandler := &payment.Handler{
		Svc: &payment.Service{Factory: factory, Logger: logger},
		Guard: &payment.Guard{
			IdempotencyTTL: cfg.IdempotencyTTL,
			ReplayTTL:      cfg.CallbackReplayTTL,
		},
	}
	guards := []func(http.Handler) http.Handler{}
	var checker health.Checker
	if redisClient != nil {
		paymentHandler.Guard.R = redisClient
		checker = health.RedisChecker{Client: redisClient}
		limiter := ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "pay:rl:"},
			Config: ratelimit.Config{
				Key:    ratelimit.KeyByGatewayIP,
				Window: cfg.RateLimitWindow,
				Max:    cfg.RateLimitMax,
			},
			Scope:   "payment_intent",
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		}
		guards = append(guards, limiter.Middleware, paymentHandler.Guard.Idempotency)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	healthHandler := health.Handler{Checker: checker, Breakers: pool.Breakers()}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		h := healthHandler
		h.Breakers = pool.Breakers()
		h.Ready(w, req)
	})

	r.Route("/api/v1", func(v chi.Router) {
		paymentHandler.Register(v, guards...)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		health.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Strs("gateways", gatewayNames()).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// connectRedis returns nil when REDIS_URL is unset; idempotency, replay
// suppression and rate limiting are then disabled.
func connectRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; idempotency and callback replay guards disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func gatewayNames() []string {
	out := make([]string, 0, len(payment.Types))
	for _, t := range payment.Types {
		out = append(out, string(t))
	}
	return out
}
