package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mutombe/cargo-space/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands. Driver profiles live in a
// hash next to the GEO set so the full card can be rebuilt on lookup.
type RedisGeo struct {
	client  *redis.Client
	key     string
	radiusM float64
}

func NewRedisGeo(client *redis.Client, key string, radiusM float64) *RedisGeo {
	if radiusM <= 0 {
		radiusM = 50000
	}
	return &RedisGeo{client: client, key: key, radiusM: radiusM}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.ID, err)
	}
	profile, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"rating":  fmt.Sprintf("%f", d.Rating),
		"online":  strconv.FormatBool(d.Online),
		"profile": string(profile),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, at.Lon, at.Lat, &redis.GeoRadiusQuery{Radius: r.radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err == nil {
			if v, ok := m["profile"]; ok {
				_ = json.Unmarshal([]byte(v), &d)
			}
			if v, ok := m["rating"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					d.Rating = f
				}
			}
			if v, ok := m["online"]; ok {
				d.Online = (v == "true")
			}
		}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		if !d.Online {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func metaKey(id string) string { return "driver:meta:" + id }
