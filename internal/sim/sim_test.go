package sim

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAfterRunsFn(t *testing.T) {
	v, err := After(context.Background(), time.Millisecond, func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("got %d %v", v, err)
	}
}

func TestAfterHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := After(ctx, time.Hour, func() (int, error) { called = true; return 1, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if called {
		t.Fatal("fn must not run after cancel")
	}
}

func TestSleepZero(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}
