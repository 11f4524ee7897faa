package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/config"
	"github.com/Mutombe/cargo-space/internal/logging"
	"github.com/Mutombe/cargo-space/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total booking events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	msgsStale = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_stale_total",
		Help: "Total events older than the stored booking status",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, msgsStale, redisUpdates, redisErrors)
}

// trackedGeoKey holds the last known position of every booking in transit.
const trackedGeoKey = "bookings_geo"

var errStale = errors.New("event older than stored status")

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		logging.NewLogger("error", logging.FileOptions{}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.NewLogger(cfg.LogLevel, logging.FileOptions{})
	defer func() { _ = logger.Sync() }()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening",
		zap.String("topic", cfg.KafkaTopic),
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group", cfg.KafkaGroup))
	consume(ctx, r, radapter, cfg.StatusTTL, logger)
}

// Reader is the part of *kafka.Reader the consume loop uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consume applies booking events until ctx is done. A message is committed
// once it has been applied, found stale, or found unparseable.
func consume(ctx context.Context, r Reader, rc RedisUpdater, ttl time.Duration, logger *zap.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", zap.Error(err), zap.Duration("backoff", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		var ev models.BookingEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.BookingID == "" || ev.Status.Rank() < 0 {
			msgsInvalid.Inc()
			logger.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		} else if err := updateRedisWithRetry(ctx, rc, &ev, ttl, 3, 200*time.Millisecond); err != nil {
			if !errors.Is(err, errStale) {
				redisErrors.Inc()
				logger.Error("redis update failed", zap.String("booking_id", ev.BookingID), zap.Error(err))
				continue
			}
			msgsStale.Inc()
		} else {
			redisUpdates.Inc()
		}
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// RedisUpdater defines the small subset of redis operations we need for tests and production.
type RedisUpdater interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.c.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *redisAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.c.Expire(ctx, key, ttl).Err()
}

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func statusKey(bookingID string) string { return "booking:status:" + bookingID }

// updateRedisWithRetry stores ev as the booking's current status with retry/backoff.
// Events ranking below the stored status are dropped with errStale.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, ev *models.BookingEvent, ttl time.Duration, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = applyEvent(ctx, rc, ev, ttl); err == nil || errors.Is(err, errStale) {
			return err
		}
		if i == attempts-1 || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}
	return err
}

func applyEvent(ctx context.Context, rc RedisUpdater, ev *models.BookingEvent, ttl time.Duration) error {
	key := statusKey(ev.BookingID)
	cur, err := rc.HGet(ctx, key, "status")
	if err != nil {
		return err
	}
	if cur != "" && models.BookingStatus(cur).Rank() > ev.Status.Rank() {
		return errStale
	}
	values := map[string]interface{}{
		"status":     string(ev.Status),
		"cargo_id":   ev.CargoID,
		"driver_id":  ev.DriverID,
		"updated_at": ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Position != nil {
		values["lat"] = ev.Position.Lat
		values["lon"] = ev.Position.Lon
	}
	if err := rc.HSet(ctx, key, values); err != nil {
		return err
	}
	if ttl > 0 {
		if err := rc.Expire(ctx, key, ttl); err != nil {
			return err
		}
	}
	if ev.Position != nil && ev.Status == models.StatusTracking {
		return rc.GeoAdd(ctx, trackedGeoKey, &redis.GeoLocation{Longitude: ev.Position.Lon, Latitude: ev.Position.Lat, Name: ev.BookingID})
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
