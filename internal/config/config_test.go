package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaTopic != "booking-events" || cfg.PostDelay != 1500*time.Millisecond || cfg.Tracking.StepFraction != 0.2 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("MATCHER_TOP_N", "3")
	t.Setenv("MIGRATE", "true")
	t.Setenv("TRACKING_STEP_FRACTION", "0.5")
	t.Setenv("SIM_PAYMENT_DELAY", "0s")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers %v", cfg.KafkaBrokers)
	}
	if cfg.MatcherTopN != 3 || !cfg.RunMigrations || cfg.Tracking.StepFraction != 0.5 || cfg.PaymentDelay != 0 || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestInvalidValuesAreJoined(t *testing.T) {
	t.Setenv("MATCHER_TOP_N", "many")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("TRACKING_STEP_FRACTION", "1.5")
	t.Setenv("LOGIN_RATE_LIMIT", "lots")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, key := range []string{"MATCHER_TOP_N", "HTTP_READ_TIMEOUT", "step fraction", "LOGIN_RATE_LIMIT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CARD_CURRENCY=eur\nHTTP_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("CARD_CURRENCY", "")
	os.Unsetenv("CARD_CURRENCY")
	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	defer os.Unsetenv("CARD_CURRENCY")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":7000" || cfg.CardCurrency != "eur" {
		t.Fatalf("got addr %q currency %q", cfg.HTTPAddr, cfg.CardCurrency)
	}
}

func TestConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_GROUP", "g1")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaGroup != "g1" || cfg.KafkaTopic != "booking-events" || len(cfg.KafkaBrokers) != 1 {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}
}
