package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/ulule/limiter/v3"

	"github.com/Mutombe/cargo-space/internal/tracking"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from the environment (optionally seeded from a .env file) with
// defaults that let the binary run locally without Redis, Kafka or Postgres.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	MatchRadiusM  float64

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN         string
	RunMigrations bool
	MigrationsDir string

	DefaultSpeedMps float64
	MatcherTopN     int
	OSRMEndpoint    string
	PushWebhook     string

	CatalogFile string

	JWTSecret      string
	SessionTTL     time.Duration
	LoginRateLimit string

	StripeKey    string
	CardCurrency string

	PostDelay         time.Duration
	DriverLoadDelay   time.Duration
	PaymentDelay      time.Duration
	LoginDelay        time.Duration
	RegistrationDelay time.Duration

	Tracking tracking.Config

	LogLevel string
	LogFile  string
}

// DevJWTSecret is used when JWT_SECRET is unset. The server logs a warning.
const DevJWTSecret = "cargo-space-dev-secret"

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RedisGeoKey:       "drivers_geo",
		MatchRadiusM:      10000,
		KafkaTopic:        "booking-events",
		MigrationsDir:     "migrations",
		DefaultSpeedMps:   10,
		MatcherTopN:       8,
		JWTSecret:         DevJWTSecret,
		SessionTTL:        24 * time.Hour,
		LoginRateLimit:    "10-M",
		CardCurrency:      "usd",
		PostDelay:         1500 * time.Millisecond,
		DriverLoadDelay:   time.Second,
		PaymentDelay:      1500 * time.Millisecond,
		LoginDelay:        1500 * time.Millisecond,
		RegistrationDelay: 2 * time.Second,
		Tracking:          tracking.DefaultConfig(),
		LogLevel:          "info",
	}
}

// LoadDotEnv reads .env style files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setFloatFromEnv(&cfg.MatchRadiusM, "MATCHER_RADIUS_M", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setBoolFromEnv(&cfg.RunMigrations, "MIGRATE", &errs)
	setStringFromEnv(&cfg.MigrationsDir, "MIGRATIONS_DIR")

	setFloatFromEnv(&cfg.DefaultSpeedMps, "MATCHER_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.MatcherTopN, "MATCHER_TOP_N", &errs)
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setStringFromEnv(&cfg.PushWebhook, "PUSH_WEBHOOK")

	setStringFromEnv(&cfg.CatalogFile, "CATALOG_FILE")

	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	setDurationFromEnv(&cfg.SessionTTL, "SESSION_TTL", &errs)
	setStringFromEnv(&cfg.LoginRateLimit, "LOGIN_RATE_LIMIT")

	cfg.StripeKey = strings.TrimSpace(os.Getenv("STRIPE_KEY"))
	setStringFromEnv(&cfg.CardCurrency, "CARD_CURRENCY")

	setDurationFromEnv(&cfg.PostDelay, "SIM_POST_DELAY", &errs)
	setDurationFromEnv(&cfg.DriverLoadDelay, "SIM_DRIVER_LOAD_DELAY", &errs)
	setDurationFromEnv(&cfg.PaymentDelay, "SIM_PAYMENT_DELAY", &errs)
	setDurationFromEnv(&cfg.LoginDelay, "SIM_LOGIN_DELAY", &errs)
	setDurationFromEnv(&cfg.RegistrationDelay, "SIM_REGISTRATION_DELAY", &errs)

	setFloatFromEnv(&cfg.Tracking.StepFraction, "TRACKING_STEP_FRACTION", &errs)
	setFloatFromEnv(&cfg.Tracking.ArrivingFraction, "TRACKING_ARRIVING_FRACTION", &errs)
	setFloatFromEnv(&cfg.Tracking.Proximity, "TRACKING_PROXIMITY_DEG", &errs)
	setFloatFromEnv(&cfg.Tracking.Epsilon, "TRACKING_EPSILON_DEG", &errs)
	setDurationFromEnv(&cfg.Tracking.Interval, "TRACKING_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.LogFile, "LOG_FILE")

	if cfg.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if err := cfg.Tracking.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := limiter.NewRateFromFormatted(cfg.LoginRateLimit); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig drives the booking-events consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	StatusTTL     time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "booking-events",
		KafkaGroup:   "cargo-space-status",
		RedisAddr:    "localhost:6379",
		StatusTTL:    7 * 24 * time.Hour,
		LogLevel:     "info",
	}
	var errs []error
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.StatusTTL, "STATUS_TTL", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := cast.ToIntE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
