package eta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
)

type failingClient struct{ calls int }

func (f *failingClient) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	f.calls++
	return 0, errors.New("no route")
}

func TestCachedFallsBackToStraightLine(t *testing.T) {
	from, to := models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 0.01}
	fc := &failingClient{}
	got := Cached(context.Background(), nil, fc, from, to, 10)
	if want := EstimateSeconds(from, to, 10); got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
	if fc.calls != 1 {
		t.Fatalf("expected one client call, got %d", fc.calls)
	}
}

func TestCachedUsesCache(t *testing.T) {
	c := NewCache(time.Minute)
	from, to := models.Coord{Lat: 1}, models.Coord{Lat: 2}
	c.Set(from, to, 42)
	fc := &failingClient{}
	if got := Cached(context.Background(), c, fc, from, to, 10); got != 42 {
		t.Fatalf("expected cached 42, got %f", got)
	}
	if fc.calls != 0 {
		t.Fatal("client should not be called on a cache hit")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Nanosecond)
	c.Set(models.Coord{}, models.Coord{}, 1)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(models.Coord{}, models.Coord{}); ok {
		t.Fatal("expected expired entry")
	}
}

func TestOSRMClient(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":321.5,"distance":4100}]}`)
	}))
	defer srv.Close()
	c := NewOSRMClient(srv.URL + "/")
	got, err := c.EstimateSeconds(context.Background(), models.Coord{Lat: -17.8, Lon: 31.0}, models.Coord{Lat: -17.9, Lon: 31.1})
	if err != nil || got != 321.5 {
		t.Fatalf("got %f %v", got, err)
	}
	if path != "/route/v1/driving/31.000000,-17.800000;31.100000,-17.900000" {
		t.Fatalf("unexpected path %s", path)
	}
	r, err := c.Route(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if err != nil || r.DistanceM != 4100 {
		t.Fatalf("route %+v %v", r, err)
	}
}

func TestOSRMNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"NoRoute","message":"Impossible route"}`)
	}))
	defer srv.Close()
	_, err := NewOSRMClient(srv.URL).EstimateSeconds(context.Background(), models.Coord{}, models.Coord{Lat: 1})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}
