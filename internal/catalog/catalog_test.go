package catalog

import (
	"errors"
	"testing"

	"github.com/Mutombe/cargo-space/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(c.Drivers) != 4 || len(c.Locations) != 4 {
		t.Fatalf("expected 4 drivers and 4 locations, got %d/%d", len(c.Drivers), len(c.Locations))
	}
	d, err := c.Driver("1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Price != "ZWL 4,500" || len(d.Offers) != 2 {
		t.Fatalf("unexpected driver %+v", d)
	}
	if d.Offers[1].BasePrice != 3800 || d.Offers[1].DriverID != "1" {
		t.Fatalf("offer not normalised: %+v", d.Offers[1])
	}
	if _, err := c.Driver("99"); !errors.Is(err, ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
	if l, ok := c.Location("ruwa"); !ok || l.Address != "12 Enterprise Road, Ruwa" {
		t.Fatalf("unexpected location %+v %v", l, ok)
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte("drivers:\n  - {id: a, price: ZWL 1}\n  - {id: a, price: ZWL 2}\n"))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestPinned(t *testing.T) {
	l := Pinned(models.Coord{Lat: -17.82456, Lon: 31.04999})
	if l.Name != "Selected Location" || l.Address != "Approximate location (-17.8246, 31.0500)" {
		t.Fatalf("unexpected pinned location %+v", l)
	}
}
