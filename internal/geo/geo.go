package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
)

// Geo is the driver position index consulted by the matcher.
type Geo interface {
	Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error)
	Upsert(ctx context.Context, d models.Driver) error
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

// Nearby returns online drivers ordered by distance; ties break on id so the
// listing is stable between calls.
func (g *Index) Nearby(_ context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Online {
			continue
		}
		arr = append(arr, pair{d, Haversine(at.Lat, at.Lon, d.Loc.Lat, d.Loc.Lon)})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist != arr[j].dist {
			return arr[i].dist < arr[j].dist
		}
		return arr[i].d.ID < arr[j].d.ID
	})
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Planar distance in degrees. Only meaningful for comparing nearby points.
func Euclidean(a, b models.Coord) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lon-a.Lon)
}
