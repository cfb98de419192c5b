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

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	IdempotencyTTL     time.Duration
	CallbackReplayTTL  time.Duration
	RateLimitWindow    time.Duration
	RateLimitMax       int

	Obs        ObsConfig
	HTTPClient HTTPClientConfig

	Paymob    PaymobConfig
	Kashier   KashierConfig
	Telr      TelrConfig
	Fawaterak FawaterakConfig
}

// ObsConfig configures logging, metrics and tracing.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// HTTPClientConfig shapes outbound provider calls. MaxAttempts of 1 disables retries.
type HTTPClientConfig struct {
	Timeout             time.Duration
	MaxAttempts         int
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

type PaymobConfig struct {
	BaseURL     string
	CheckoutURL string
	PublicKey   string
	SecretKey   string
	HMACSecret  string
	CallbackURL string
}

type KashierConfig struct {
	BaseURL        string
	PublicKey      string
	MerchantID     string
	APIKey         string
	Mode           string
	RedirectURL    string
	Currency       string
	Display        string
	RedirectMethod string
}

type TelrConfig struct {
	MerchantID string
	APIKey     string
	TestMode   bool
	APIURL     string
	SuccessURL string
	CancelURL  string
	DeclineURL string
}

type FawaterakConfig struct {
	APIURL string
	Token  string
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
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CallbackReplayTTL:  parseDuration(k.String("CALLBACK_REPLAY_TTL"), "72h"),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 30),
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "paygate"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		},
		HTTPClient: HTTPClientConfig{
			Timeout:             parseDuration(k.String("HTTP_CLIENT_TIMEOUT"), "15s"),
			MaxAttempts:         parseInt(k.String("HTTP_CLIENT_MAX_ATTEMPTS"), 1),
			BreakerMinRequests:  parseInt(k.String("HTTP_CLIENT_BREAKER_MIN_REQUESTS"), 10),
			BreakerFailureRatio: parseFloat(k.String("HTTP_CLIENT_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("HTTP_CLIENT_BREAKER_OPEN_FOR"), "30s"),
		},
		Paymob: PaymobConfig{
			BaseURL:     valueOrDefault(k.String("PAYMOB_BASE_URL"), "https://accept.paymob.com/v1"),
			CheckoutURL: valueOrDefault(k.String("PAYMOB_CHECKOUT_URL"), "https://accept.paymob.com/unifiedcheckout"),
			PublicKey:   k.String("PAYMOB_PUBLIC_KEY"),
			SecretKey:   k.String("PAYMOB_SECRET_KEY"),
			HMACSecret:  k.String("PAYMOB_HMAC_SECRET"),
			CallbackURL: k.String("PAYMOB_CALLBACK_URL"),
		},
		Kashier: KashierConfig{
			BaseURL:        valueOrDefault(k.String("KASHIER_BASE_URL"), "https://checkout.kashier.io"),
			PublicKey:      k.String("KASHIER_PUBLIC_KEY"),
			MerchantID:     k.String("KASHIER_MERCHANT_ID"),
			APIKey:         k.String("KASHIER_API_KEY"),
			Mode:           valueOrDefault(k.String("KASHIER_MODE"), "live"),
			RedirectURL:    k.String("KASHIER_REDIRECT_URL"),
			Currency:       valueOrDefault(k.String("KASHIER_CURRENCY"), "EGP"),
			Display:        valueOrDefault(k.String("KASHIER_DISPLAY"), "ar"),
			RedirectMethod: valueOrDefault(k.String("KASHIER_REDIRECT_METHOD"), "get"),
		},
		Telr: TelrConfig{
			MerchantID: k.String("TELR_MERCHANT_ID"),
			APIKey:     k.String("TELR_API_KEY"),
			TestMode:   parseBool(k.String("TELR_TEST_MODE")),
			APIURL:     valueOrDefault(k.String("TELR_API_URL"), "https://secure.telr.com/gateway/order.json"),
			SuccessURL: k.String("TELR_SUCCESS_URL"),
			CancelURL:  k.String("TELR_CANCEL_URL"),
			DeclineURL: k.String("TELR_DECLINE_URL"),
		},
		Fawaterak: FawaterakConfig{
			APIURL: valueOrDefault(k.String("FAWATERAK_API_URL"), "https://staging.fawaterk.com/api/v2/"),
			Token:  k.String("FAWATERAK_TOKEN"),
		},
	}

	if cfg.HTTPClient.MaxAttempts < 1 {
		return nil, errors.New("HTTP_CLIENT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RateLimitMax < 0 {
		return nil, errors.New("RATE_LIMIT_MAX must not be negative")
	}
	if cfg.IsProduction() && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required in production")
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "production" || env == "prod"
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

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
