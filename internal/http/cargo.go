package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/posting"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

// locationInput is either a sample location by name, a map pin, or a fully
// specified place.
type locationInput struct {
	Name    string        `json:"name"`
	Address string        `json:"address"`
	Coord   *models.Coord `json:"coordinates"`
}

func (l locationInput) resolve(c *catalog.Catalog) (models.Location, error) {
	if l.Coord == nil {
		if loc, ok := c.Location(l.Name); ok {
			return loc, nil
		}
		return models.Location{}, &badRequest{err: errors.New("unknown location " + strconv.Quote(l.Name))}
	}
	if strings.TrimSpace(l.Name) == "" {
		return catalog.Pinned(*l.Coord), nil
	}
	return models.Location{Name: l.Name, Address: l.Address, Coord: *l.Coord}, nil
}

type cargoPatch struct {
	Type             *models.CargoType     `json:"type"`
	Pickup           *locationInput        `json:"pickup"`
	Dropoff          *locationInput        `json:"dropoff"`
	Title            *string               `json:"title"`
	Description      *string               `json:"description"`
	WeightKg         *float64              `json:"weight_kg"`
	Dimensions       *models.Dimensions    `json:"dimensions"`
	Fragile          *bool                 `json:"fragile"`
	RequiresHandling *bool                 `json:"requires_handling"`
	TransportMode    *models.TransportMode `json:"transport_mode"`
}

func (p cargoPatch) apply(st *posting.Stepper, c *catalog.Catalog) error {
	if p.Type != nil {
		if err := st.SetCargoType(*p.Type); err != nil {
			return err
		}
	}
	if p.Pickup != nil {
		loc, err := p.Pickup.resolve(c)
		if err != nil {
			return err
		}
		if err := st.SetPickup(loc); err != nil {
			return err
		}
	}
	if p.Dropoff != nil {
		loc, err := p.Dropoff.resolve(c)
		if err != nil {
			return err
		}
		if err := st.SetDropoff(loc); err != nil {
			return err
		}
	}
	if p.Title != nil {
		if err := st.SetTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := st.SetDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.WeightKg != nil {
		if err := st.SetWeight(*p.WeightKg); err != nil {
			return err
		}
	}
	if p.Dimensions != nil {
		if err := st.SetDimensions(*p.Dimensions); err != nil {
			return err
		}
	}
	if p.Fragile != nil {
		if err := st.SetFragile(*p.Fragile); err != nil {
			return err
		}
	}
	if p.RequiresHandling != nil {
		if err := st.SetRequiresHandling(*p.RequiresHandling); err != nil {
			return err
		}
	}
	if p.TransportMode != nil {
		return st.SetTransportMode(*p.TransportMode)
	}
	return nil
}

func (s *Server) handleNewCargo(w http.ResponseWriter, r *http.Request) {
	st := s.svc.NewPost(owner(r))
	if r.ContentLength > 0 {
		var p cargoPatch
		if err := decode(r, &p); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := p.apply(st, s.svc.Catalog()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, st.Snapshot())
}

func (s *Server) handleGetCargo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Post(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handlePatchCargo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Post(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p cargoPatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.apply(st, s.svc.Catalog()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handleAdvanceCargo(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Advance(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRetreatCargo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Post(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := st.Retreat(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handleAddImages(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Post(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Images []string `json:"images"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := st.AddImages(body.Images...); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	st, err := s.svc.Post(owner(r), vars["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	i, _ := strconv.Atoi(vars["index"])
	if err := st.RemoveImage(i); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handleSubmitCargo(w http.ResponseWriter, r *http.Request) {
	post, next, err := s.svc.SubmitPost(r.Context(), owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cargo": post, "next": next})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": s.svc.Catalog().Locations})
}

// handleEstimate prices a mode with the current options; without a mode it
// lists every mode.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fragile, _ := strconv.ParseBool(q.Get("fragile"))
	handling, _ := strconv.ParseBool(q.Get("requires_handling"))
	modes := models.TransportModes
	if m := q.Get("mode"); m != "" {
		mode := models.TransportMode(m)
		if !mode.Valid() {
			s.writeError(w, r, &badRequest{err: errors.New("unknown transport mode " + strconv.Quote(m))})
			return
		}
		modes = []models.TransportMode{mode}
	}
	type estimate struct {
		Mode     models.TransportMode `json:"mode"`
		Base     int64                `json:"base"`
		Estimate int64                `json:"estimate"`
		Label    string               `json:"label"`
	}
	out := make([]estimate, 0, len(modes))
	for _, m := range modes {
		e := pricing.Estimate(m, fragile, handling)
		out = append(out, estimate{Mode: m, Base: pricing.Base(m), Estimate: e, Label: pricing.Format(e)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimates": out})
}
