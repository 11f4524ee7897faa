package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Mutombe/cargo-space/internal/geo"
	"github.com/Mutombe/cargo-space/internal/models"
)

var (
	harareCBD   = models.Coord{Lat: -17.824858, Lon: 31.053028}
	chitungwiza = models.Coord{Lat: -17.832123, Lon: 31.042345}
)

func TestDistanceStrictlyDecreasesUntilDelivered(t *testing.T) {
	tr, err := New("b1", harareCBD, chitungwiza, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	prev := geo.Euclidean(harareCBD, chitungwiza)
	prevState := InTransit
	for i := 0; i < 1000; i++ {
		u := tr.Tick()
		d := geo.Euclidean(u.Position, chitungwiza)
		if d >= prev {
			t.Fatalf("tick %d: distance %v not below %v", u.Tick, d, prev)
		}
		if u.State.rank() < prevState.rank() {
			t.Fatalf("tick %d: state went back from %s to %s", u.Tick, prevState, u.State)
		}
		prev, prevState = d, u.State
		if u.State == Delivered {
			if u.Position != chitungwiza || u.Progress != 1 {
				t.Fatalf("delivered update not snapped: %+v", u)
			}
			return
		}
	}
	t.Fatal("not delivered after 1000 ticks")
}

func TestArrivingBeforeDelivered(t *testing.T) {
	tr, err := New("b1", harareCBD, chitungwiza, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	seen := map[State]bool{}
	for tr.State() != Delivered {
		seen[tr.Tick().State] = true
	}
	if !seen[Arriving] {
		t.Fatal("expected an arriving phase")
	}
	final := tr.Tick()
	if final.State != Delivered || final.Position != chitungwiza {
		t.Fatalf("tick after delivery moved: %+v", final)
	}
}

func TestFullStepDeliversImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepFraction = 1
	tr, err := New("b1", harareCBD, chitungwiza, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if u := tr.Tick(); u.State != Delivered || u.Tick != 1 {
		t.Fatalf("expected delivered on first tick, got %+v", u)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, cfg := range []Config{
		{StepFraction: 0, ArrivingFraction: 0.5, Proximity: 0.001, Epsilon: 0.0001, Interval: time.Second},
		{StepFraction: 1.5, ArrivingFraction: 0.5, Proximity: 0.001, Epsilon: 0.0001, Interval: time.Second},
		{StepFraction: 0.2, ArrivingFraction: -1, Proximity: 0.001, Epsilon: 0.0001, Interval: time.Second},
		{StepFraction: 0.2, ArrivingFraction: 0.5, Proximity: 0.00001, Epsilon: 0.0001, Interval: time.Second},
		{StepFraction: 0.2, ArrivingFraction: 0.5, Proximity: 0.001, Epsilon: 0.0001},
	} {
		if _, err := New("b", harareCBD, chitungwiza, cfg); !errors.Is(err, ErrBadConfig) {
			t.Fatalf("config %+v: expected ErrBadConfig, got %v", cfg, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestRunStopsWhenDelivered(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr, err := New("b1", harareCBD, chitungwiza, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	var updates []Update
	if err := tr.Run(context.Background(), time.Millisecond, func(u Update) { updates = append(updates, u) }); err != nil {
		t.Fatal(err)
	}
	if len(updates) == 0 || updates[len(updates)-1].State != Delivered {
		t.Fatalf("expected final delivered update, got %d updates", len(updates))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr, err := New("b1", harareCBD, chitungwiza, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, time.Hour, nil) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if tr.State() != InTransit {
		t.Fatalf("expected no ticks, got state %s", tr.State())
	}
}
