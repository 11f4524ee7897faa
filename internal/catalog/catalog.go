// Package catalog loads the fixed driver roster and sample locations offered to shippers.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

//go:embed drivers.yaml
var defaultCatalog []byte

var ErrDriverNotFound = errors.New("driver not found")

type Catalog struct {
	Drivers   []models.Driver   `yaml:"drivers"`
	Locations []models.Location `yaml:"locations"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) { return Parse(defaultCatalog) }

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Drivers))
	for i := range c.Drivers {
		d := &c.Drivers[i]
		if d.ID == "" || seen[d.ID] {
			return nil, fmt.Errorf("catalog driver %d: missing or duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if _, err := pricing.ParseAmount(d.Price); err != nil {
			return nil, fmt.Errorf("catalog driver %s: %w", d.ID, err)
		}
		for j := range d.Offers {
			o := &d.Offers[j]
			o.DriverID = d.ID
			v, err := pricing.ParseAmount(o.Price)
			if err != nil {
				return nil, fmt.Errorf("catalog driver %s offer %s: %w", d.ID, o.ID, err)
			}
			o.BasePrice = v
		}
	}
	return &c, nil
}

func (c *Catalog) Driver(id string) (models.Driver, error) {
	for _, d := range c.Drivers {
		if d.ID == id {
			return d, nil
		}
	}
	return models.Driver{}, fmt.Errorf("%w: %s", ErrDriverNotFound, id)
}

// Location looks up a sample location by name, case-insensitively.
func (c *Catalog) Location(name string) (models.Location, bool) {
	for _, l := range c.Locations {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return models.Location{}, false
}

// Pinned builds the location produced by clicking on the map.
func Pinned(at models.Coord) models.Location {
	return models.Location{
		Name:    "Selected Location",
		Address: fmt.Sprintf("Approximate location (%.4f, %.4f)", at.Lat, at.Lon),
		Coord:   at,
	}
}
