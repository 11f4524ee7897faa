package eta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Mutombe/cargo-space/internal/geo"
	"github.com/Mutombe/cargo-space/internal/models"
)

// Client is the interface used by the matcher to get ETAs.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Straight-line ETA: distance / speed_mps.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speedMps
}

// Straight is a Client backed by EstimateSeconds.
type Straight struct{ SpeedMps float64 }

func (s Straight) EstimateSeconds(_ context.Context, from, to models.Coord) (float64, error) {
	return EstimateSeconds(from, to, s.SpeedMps), nil
}

// Cached consults the cache before client and falls back to the straight-line
// estimate when client fails.
func Cached(ctx context.Context, cache *Cache, client Client, from, to models.Coord, speedMps float64) float64 {
	if cache != nil {
		if v, ok := cache.Get(from, to); ok {
			return v
		}
	}
	if client == nil {
		client = Straight{SpeedMps: speedMps}
	}
	v, err := client.EstimateSeconds(ctx, from, to)
	if err != nil {
		return EstimateSeconds(from, to, speedMps)
	}
	if cache != nil {
		cache.Set(from, to, v)
	}
	return v
}
