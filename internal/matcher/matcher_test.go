package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/Mutombe/cargo-space/internal/models"
)

type fakeGeo struct{ drivers []models.Driver }

func (f *fakeGeo) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	return f.drivers, nil
}

type recordingDisp struct{ keys []string }

func (r *recordingDisp) Send(key string, v any) error { r.keys = append(r.keys, key); return nil }

func post() models.CargoPost {
	return models.CargoPost{ID: "c1", Pickup: &models.Location{Name: "p"}, Dropoff: &models.Location{Name: "d"}}
}

func TestChooseHigherRatingIfETAEqual(t *testing.T) {
	g := &fakeGeo{drivers: []models.Driver{
		{ID: "A", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 4.0, Online: true},
		{ID: "B", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 5.0, Online: true},
	}}
	disp := &recordingDisp{}
	s := &Service{Geo: g, Dispatch: disp, DefaultSpeedMps: 10, TopN: 2}
	cands, err := s.Candidates(context.Background(), post())
	if err != nil {
		t.Fatal(err)
	}
	if cands[0].Driver.ID != "B" {
		t.Fatalf("expected B, got %s", cands[0].Driver.ID)
	}
	if len(disp.keys) != 2 || disp.keys[0] != "driver:B" {
		t.Fatalf("expected both drivers notified, got %v", disp.keys)
	}
}

func TestNoDrivers(t *testing.T) {
	s := &Service{Geo: &fakeGeo{}}
	if _, err := s.Candidates(context.Background(), post()); !errors.Is(err, ErrNoDrivers) {
		t.Fatalf("expected ErrNoDrivers, got %v", err)
	}
	if _, err := s.Candidates(context.Background(), models.CargoPost{}); !errors.Is(err, ErrNoPickup) {
		t.Fatalf("expected ErrNoPickup, got %v", err)
	}
}
