package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Mutombe/cargo-space/internal/eta"
	"github.com/Mutombe/cargo-space/internal/geo"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/observability"
	"github.com/Mutombe/cargo-space/internal/sim"
)

// DefaultLoadDelay is the simulated wait before the driver list appears.
const DefaultLoadDelay = time.Second

var (
	ErrNoDrivers = errors.New("no drivers available")
	ErrNoPickup  = errors.New("cargo post has no pickup location")
)

type Geo interface {
	Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error)
}

// Dispatcher tells a driver about a new cargo post. Delivery is best effort.
type Dispatcher interface {
	Send(key string, v any) error
}

// CargoNotice is what drivers receive when a shipment is posted near them.
type CargoNotice struct {
	CargoID  string               `json:"cargo_id"`
	Title    string               `json:"title"`
	Pickup   models.Location      `json:"pickup"`
	Dropoff  models.Location      `json:"dropoff"`
	Mode     models.TransportMode `json:"transport_mode"`
	Estimate int64                `json:"estimate"`
}

type Service struct {
	Geo             Geo
	Dispatch        Dispatcher // optional
	DefaultSpeedMps float64
	TopN            int
	LoadDelay       time.Duration
	ETAClient       eta.Client // optional OSRM client
	ETACache        *eta.Cache // optional ETA cache
}

// Candidates lists the drivers for a posted cargo, best first. The score is
// eta + 30*(5 - rating), so a better rated driver wins an ETA tie.
func (s *Service) Candidates(ctx context.Context, post models.CargoPost) ([]models.Candidate, error) {
	if post.Pickup == nil {
		return nil, ErrNoPickup
	}
	start := time.Now()
	if err := sim.Sleep(ctx, s.LoadDelay); err != nil {
		return nil, err
	}
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	pickup := post.Pickup.Coord
	drivers, err := s.Geo.Nearby(ctx, pickup, topN)
	if err != nil {
		return nil, fmt.Errorf("nearby drivers: %w", err)
	}
	if len(drivers) == 0 {
		return nil, ErrNoDrivers
	}
	out := make([]models.Candidate, 0, len(drivers))
	for _, d := range drivers {
		etaSec := eta.Cached(ctx, s.ETACache, s.ETAClient, d.Loc, pickup, s.DefaultSpeedMps)
		out = append(out, models.Candidate{
			Driver:     d,
			DistanceKm: geo.Haversine(d.Loc.Lat, d.Loc.Lon, pickup.Lat, pickup.Lon) / 1000,
			ETA:        etaSec,
			Score:      etaSec + 30.0*(5.0-d.Rating),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })

	if s.Dispatch != nil {
		notice := CargoNotice{CargoID: post.ID, Title: post.Details.Title, Pickup: *post.Pickup, Mode: post.TransportMode, Estimate: post.EstimatedCost}
		if post.Dropoff != nil {
			notice.Dropoff = *post.Dropoff
		}
		for _, c := range out {
			_ = s.Dispatch.Send(DriverKey(c.Driver.ID), notice)
		}
	}
	observability.MatchesTotal.Inc()
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return out, nil
}

// Seed loads drivers into the index.
func Seed(ctx context.Context, g geo.Geo, drivers []models.Driver) error {
	for _, d := range drivers {
		if err := g.Upsert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func DriverKey(id string) string { return "driver:" + id }
