package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failH    int // number of times to fail HSet before succeeding
	hCalls   int
	hashes   map[string]map[string]interface{}
	ttls     map[string]time.Duration
	geoNames []string
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{hashes: map[string]map[string]interface{}{}, ttls: map[string]time.Duration{}}
}

func (f *fakeUpdater) HGet(ctx context.Context, key, field string) (string, error) {
	if v, ok := f.hashes[key][field]; ok {
		return v.(string), nil
	}
	return "", nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]interface{}{}
		f.hashes[key] = h
	}
	for k, v := range values {
		h[k] = v
	}
	return nil
}

func (f *fakeUpdater) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.ttls[key] = ttl
	return nil
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoNames = append(f.geoNames, loc.Name)
	return nil
}

func event(status models.BookingStatus) *models.BookingEvent {
	return &models.BookingEvent{BookingID: "b1", CargoID: "c1", DriverID: "1", Status: status, At: time.Unix(1700000000, 0)}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := newFakeUpdater()
	f.failH = 1
	start := time.Now()
	if err := updateRedisWithRetry(context.Background(), f, event(models.StatusPaid), time.Hour, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.hCalls < 2 {
		t.Fatalf("expected retries, got h=%d", f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if got := f.hashes["booking:status:b1"]["status"]; got != "paid" {
		t.Fatalf("status = %v", got)
	}
	if f.ttls["booking:status:b1"] != time.Hour {
		t.Fatalf("ttl not set: %v", f.ttls)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := newFakeUpdater()
	f.failH = 5
	if err := updateRedisWithRetry(context.Background(), f, event(models.StatusPaid), 0, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.hCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.hCalls)
	}
}

func TestStaleEventIsDropped(t *testing.T) {
	f := newFakeUpdater()
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, event(models.StatusDelivered), 0, 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := updateRedisWithRetry(ctx, f, event(models.StatusTracking), 0, 3, time.Millisecond); !errors.Is(err, errStale) {
		t.Fatalf("expected errStale, got %v", err)
	}
	if f.hCalls != 1 || f.hashes["booking:status:b1"]["status"] != "delivered" {
		t.Fatalf("stale event was written: %v", f.hashes)
	}
}

func TestTrackingEventIndexesPosition(t *testing.T) {
	f := newFakeUpdater()
	ev := event(models.StatusTracking)
	ev.Position = &models.Coord{Lat: -17.824858, Lon: 31.053028}
	if err := updateRedisWithRetry(context.Background(), f, ev, 0, 1, 0); err != nil {
		t.Fatal(err)
	}
	if len(f.geoNames) != 1 || f.geoNames[0] != "b1" {
		t.Fatalf("geo index not updated: %v", f.geoNames)
	}
	if f.hashes["booking:status:b1"]["lat"] != -17.824858 {
		t.Fatalf("position not stored: %v", f.hashes)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func TestConsumeCommitsAppliedAndInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	good, _ := json.Marshal(event(models.StatusPaid))
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: []byte(`{"booking_id":"b2","status":"lost"}`)},
	}}
	f := newFakeUpdater()
	consume(ctx, r, f, time.Hour, zap.NewNop())

	if len(r.committed) != 3 {
		t.Fatalf("expected 3 commits, got %v", r.committed)
	}
	if f.hashes["booking:status:b1"]["status"] != "paid" {
		t.Fatalf("event not applied: %v", f.hashes)
	}
	if _, ok := f.hashes["booking:status:b2"]; ok {
		t.Fatal("invalid status was stored")
	}
}
