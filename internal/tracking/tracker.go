// Package tracking moves a simulated vehicle toward its destination in fixed
// fractional steps and reports in-transit, arriving and delivered states.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Mutombe/cargo-space/internal/geo"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/observability"
)

type State string

const (
	InTransit State = "in-transit"
	Arriving  State = "arriving"
	Delivered State = "delivered"
)

func (s State) rank() int {
	switch s {
	case InTransit:
		return 0
	case Arriving:
		return 1
	case Delivered:
		return 2
	}
	return -1
}

var ErrBadConfig = errors.New("invalid tracking config")

// Config controls the step size. Proximity and Epsilon are in degrees and
// apply to each axis separately.
type Config struct {
	StepFraction     float64
	ArrivingFraction float64
	Proximity        float64
	Epsilon          float64
	Interval         time.Duration
}

func DefaultConfig() Config {
	return Config{
		StepFraction:     0.2,
		ArrivingFraction: 0.5,
		Proximity:        0.001,
		Epsilon:          0.0001,
		Interval:         2 * time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.StepFraction <= 0 || c.StepFraction > 1 {
		errs = append(errs, fmt.Errorf("step fraction %v not in (0,1]", c.StepFraction))
	}
	if c.ArrivingFraction <= 0 || c.ArrivingFraction > 1 {
		errs = append(errs, fmt.Errorf("arriving fraction %v not in (0,1]", c.ArrivingFraction))
	}
	if c.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("epsilon %v must be positive", c.Epsilon))
	}
	if c.Proximity < c.Epsilon {
		errs = append(errs, fmt.Errorf("proximity %v below epsilon %v", c.Proximity, c.Epsilon))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval %v must be positive", c.Interval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrBadConfig, errors.Join(errs...))
	}
	return nil
}

// Update is one reported position.
type Update struct {
	BookingID   string       `json:"booking_id"`
	Position    models.Coord `json:"position"`
	Destination models.Coord `json:"destination"`
	State       State        `json:"state"`
	Progress    float64      `json:"progress"`
	DistanceKm  float64      `json:"distance_km"`
	Tick        int          `json:"tick"`
	At          time.Time    `json:"at"`
}

// Tracker holds the simulated position for one booking. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	id      string
	cfg     Config
	pos     models.Coord
	dest    models.Coord
	state   State
	ticks   int
	now     func() time.Time
	initial float64
}

func New(bookingID string, from, to models.Coord, cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		id:      bookingID,
		cfg:     cfg,
		pos:     from,
		dest:    to,
		state:   InTransit,
		now:     time.Now,
		initial: geo.Euclidean(from, to),
	}, nil
}

// Tick advances the position by one step. Once delivered it keeps returning
// the final update.
func (t *Tracker) Tick() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Delivered {
		return t.update()
	}
	frac := t.cfg.StepFraction
	if t.state == Arriving {
		frac = t.cfg.ArrivingFraction
	}
	t.pos = models.Coord{
		Lat: t.pos.Lat + (t.dest.Lat-t.pos.Lat)*frac,
		Lon: t.pos.Lon + (t.dest.Lon-t.pos.Lon)*frac,
	}
	t.ticks++
	switch {
	case t.within(t.cfg.Epsilon):
		t.pos = t.dest
		t.advance(Delivered)
	case t.within(t.cfg.Proximity):
		t.advance(Arriving)
	}
	observability.TrackingTicks.Inc()
	return t.update()
}

func (t *Tracker) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run ticks every interval and hands each update to sink. It returns nil once
// delivered, or the context error if ctx ends first.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, sink func(Update)) error {
	if interval <= 0 {
		interval = t.cfg.Interval
	}
	observability.ActiveTrackers.Inc()
	defer observability.ActiveTrackers.Dec()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u := t.Tick()
			if sink != nil {
				sink(u)
			}
			if u.State == Delivered {
				return nil
			}
		}
	}
}

func (t *Tracker) within(tol float64) bool {
	return math.Abs(t.dest.Lat-t.pos.Lat) < tol && math.Abs(t.dest.Lon-t.pos.Lon) < tol
}

func (t *Tracker) advance(s State) {
	if s.rank() > t.state.rank() {
		t.state = s
	}
}

func (t *Tracker) update() Update {
	remaining := geo.Euclidean(t.pos, t.dest)
	progress := 1.0
	if t.initial > 0 && t.state != Delivered {
		progress = 1 - remaining/t.initial
	}
	return Update{
		BookingID:   t.id,
		Position:    t.pos,
		Destination: t.dest,
		State:       t.state,
		Progress:    progress,
		DistanceKm:  geo.Haversine(t.pos.Lat, t.pos.Lon, t.dest.Lat, t.dest.Lon) / 1000,
		Tick:        t.ticks,
		At:          t.now(),
	}
}
