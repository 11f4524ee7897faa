package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mutombe/cargo-space/internal/booking"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

type driverRequest struct {
	DriverID string `json:"driver_id"`
}

// offerRequest either takes a standing offer by id or proposes a price. Price
// accepts a plain number or a label such as "ZWL 16,000".
type offerRequest struct {
	OfferID string `json:"offer_id"`
	Price   string `json:"price"`
	Message string `json:"message"`
}

func (s *Server) flow(w http.ResponseWriter, r *http.Request) (*booking.Flow, bool) {
	f, err := s.svc.Flow(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return f, true
}

// handleDrivers lists candidates for a posted cargo, opening its booking on
// the first call.
func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.Drivers(r.Context(), owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) handleBookingView(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.flow(w, r); ok {
		writeJSON(w, http.StatusOK, f.View())
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req driverRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := f.Accept(req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req driverRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := f.Negotiate(req.DriverID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) handleCancelNegotiation(w http.ResponseWriter, r *http.Request) {
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	if err := f.CancelNegotiation(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var (
		b   models.Booking
		err error
	)
	if req.OfferID != "" {
		b, err = f.TakeOffer(req.OfferID)
	} else {
		price, perr := pricing.ParseOffer(req.Price)
		if perr != nil {
			s.writeError(w, r, booking.ErrInvalidOffer)
			return
		}
		b, err = f.SubmitOffer(price, req.Message)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, ok := models.ParsePaymentMethod(req.Method)
	if !ok {
		s.writeError(w, r, booking.ErrUnknownPaymentMethod)
		return
	}
	if err := f.SelectPaymentMethod(m); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	b, next, err := s.svc.Pay(r.Context(), owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b, "next": next})
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Tracking(owner(r), mux.Vars(r)["cargo_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := s.svc.Bookings(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bs == nil {
		bs = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bs})
}
