package posting

import (
	"context"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/sim"
)

// DefaultPostDelay mirrors the latency of the hosted post endpoint.
const DefaultPostDelay = 1500 * time.Millisecond

// Delayed wraps next so every post resolves only after d.
func Delayed(d time.Duration, next Poster) Poster {
	return PosterFunc(func(ctx context.Context, post models.CargoPost) (models.CargoPost, error) {
		return sim.After(ctx, d, func() (models.CargoPost, error) {
			return next.Post(ctx, post)
		})
	})
}

// Immediate accepts every post unchanged.
var Immediate Poster = PosterFunc(func(_ context.Context, post models.CargoPost) (models.CargoPost, error) {
	return post, nil
})
