package eta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
)

var ErrNoRoute = errors.New("osrm: no route")

// Route is the road leg from a driver to a pickup.
type Route struct {
	DurationSec float64 `json:"duration"`
	DistanceM   float64 `json:"distance"`
}

// OSRMClient looks up road routes for the driving profile of an OSRM server.
type OSRMClient struct {
	Endpoint string
	Profile  string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Profile:  "driving",
		Client:   &http.Client{Timeout: 2 * time.Second},
	}
}

// Route fetches the fastest route between two points.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=false&alternatives=false",
		o.Endpoint, o.Profile, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Code    string  `json:"code"`
		Message string  `json:"message"`
		Routes  []Route `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("osrm decode (status %d): %w", resp.StatusCode, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: %s %s", ErrNoRoute, out.Code, out.Message)
	}
	return out.Routes[0], nil
}

// EstimateSeconds satisfies Client with the route duration.
func (o *OSRMClient) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	r, err := o.Route(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return r.DurationSec, nil
}
