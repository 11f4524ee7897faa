package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/booking"
	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/dispatch"
	"github.com/Mutombe/cargo-space/internal/matcher"
	"github.com/Mutombe/cargo-space/internal/messaging"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/posting"
	"github.com/Mutombe/cargo-space/internal/registration"
	"github.com/Mutombe/cargo-space/internal/service"
	"github.com/Mutombe/cargo-space/internal/session"
	"github.com/Mutombe/cargo-space/internal/storage"
)

type Server struct {
	svc      *service.Service
	sessions *session.Service
	ws       *dispatch.WSRegistry
	logger   *zap.Logger
	mux      *mux.Router
	login    *stdlib.Middleware
}

type Options struct {
	LoginRate string // ulule formatted rate, e.g. "10-M"
}

func NewServer(svc *service.Service, sessions *session.Service, ws *dispatch.WSRegistry, logger *zap.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ws == nil {
		ws = dispatch.NewWSRegistry(logger)
	}
	if opts.LoginRate == "" {
		opts.LoginRate = "10-M"
	}
	rate, err := limiter.NewRateFromFormatted(opts.LoginRate)
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:      svc,
		sessions: sessions,
		ws:       ws,
		logger:   logger,
		mux:      mux.NewRouter(),
		login: stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate),
			stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many attempts. Please wait and try again."})
			})),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/tracking/{cargo_id}", s.handleTrackingWS)
	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleDriverWS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Handle("/sessions/login", s.login.Handler(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	api.Handle("/sessions/register", s.login.Handler(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	api.HandleFunc("/navigation", s.handleNavigation).Methods(http.MethodGet)
	api.HandleFunc("/catalog/locations", s.handleLocations).Methods(http.MethodGet)
	api.HandleFunc("/catalog/estimate", s.handleEstimate).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/sessions/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/sessions", s.handleLogout).Methods(http.MethodDelete)

	authed.HandleFunc("/cargo", s.handleNewCargo).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}", s.handleGetCargo).Methods(http.MethodGet)
	authed.HandleFunc("/cargo/{cargo_id}", s.handlePatchCargo).Methods(http.MethodPatch)
	authed.HandleFunc("/cargo/{cargo_id}/advance", s.handleAdvanceCargo).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/back", s.handleRetreatCargo).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/images", s.handleAddImages).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/images/{index:[0-9]+}", s.handleRemoveImage).Methods(http.MethodDelete)
	authed.HandleFunc("/cargo/{cargo_id}/submit", s.handleSubmitCargo).Methods(http.MethodPost)

	authed.HandleFunc("/cargo/{cargo_id}/drivers", s.handleDrivers).Methods(http.MethodGet)
	authed.HandleFunc("/cargo/{cargo_id}/booking", s.handleBookingView).Methods(http.MethodGet)
	authed.HandleFunc("/cargo/{cargo_id}/booking/accept", s.handleAccept).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/booking/negotiation", s.handleNegotiate).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/booking/negotiation", s.handleCancelNegotiation).Methods(http.MethodDelete)
	authed.HandleFunc("/cargo/{cargo_id}/booking/offer", s.handleOffer).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/booking/payment-method", s.handlePaymentMethod).Methods(http.MethodPut)
	authed.HandleFunc("/cargo/{cargo_id}/booking/pay", s.handlePay).Methods(http.MethodPost)
	authed.HandleFunc("/cargo/{cargo_id}/tracking", s.handleTracking).Methods(http.MethodGet)
	authed.HandleFunc("/bookings", s.handleBookings).Methods(http.MethodGet)

	authed.HandleFunc("/messages", s.handleConversations).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{conversation_id}", s.handleOpenConversation).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{conversation_id}", s.handleSendMessage).Methods(http.MethodPost)

	authed.HandleFunc("/driver-registrations", s.handleNewRegistration).Methods(http.MethodPost)
	authed.HandleFunc("/driver-registrations/{registration_id}", s.handleGetRegistration).Methods(http.MethodGet)
	authed.HandleFunc("/driver-registrations/{registration_id}", s.handlePatchRegistration).Methods(http.MethodPatch)
	authed.HandleFunc("/driver-registrations/{registration_id}/next", s.handleNextRegistration).Methods(http.MethodPost)
	authed.HandleFunc("/driver-registrations/{registration_id}/back", s.handleBackRegistration).Methods(http.MethodPost)

	authed.HandleFunc("/enterprise-registrations", s.handleNewEnterprise).Methods(http.MethodPost)
	authed.HandleFunc("/enterprise-registrations/{registration_id}", s.handleGetEnterprise).Methods(http.MethodGet)
	authed.HandleFunc("/enterprise-registrations/{registration_id}", s.handlePatchEnterprise).Methods(http.MethodPatch)
	authed.HandleFunc("/enterprise-registrations/{registration_id}/next", s.handleNextEnterprise).Methods(http.MethodPost)
	authed.HandleFunc("/enterprise-registrations/{registration_id}/back", s.handleBackEnterprise).Methods(http.MethodPost)
}

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequest{err: err}
	}
	return nil
}

type badRequest struct{ err error }

func (b *badRequest) Error() string { return "invalid request body: " + b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pverr *posting.ValidationError
		rverr *registration.ValidationError
		bad   *badRequest
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &pverr):
		status, body.Stage = http.StatusUnprocessableEntity, pverr.Stage.String()
	case errors.As(err, &rverr):
		status, body.Stage = http.StatusUnprocessableEntity, rverr.Stage
	case errors.As(err, &bad):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound),
		errors.Is(err, messaging.ErrConversationNotFound), errors.Is(err, catalog.ErrDriverNotFound),
		errors.Is(err, booking.ErrUnknownDriver), errors.Is(err, booking.ErrUnknownOffer):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidOffer), errors.Is(err, booking.ErrNoPaymentMethod),
		errors.Is(err, booking.ErrUnknownPaymentMethod), errors.Is(err, messaging.ErrEmptyMessage),
		errors.Is(err, session.ErrMissingField), errors.Is(err, posting.ErrImageIndex),
		errors.Is(err, registration.ErrUnknownDocument), errors.Is(err, payments.ErrUnsupportedMethod):
		status = http.StatusBadRequest
	case errors.Is(err, matcher.ErrNoDrivers):
		status = http.StatusServiceUnavailable
	case isConflict(err):
		status = http.StatusConflict
	case isRetryable(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

var conflicts = []error{
	posting.ErrFirstStage, posting.ErrLastStage, posting.ErrNotAtPreview, posting.ErrFinalized, posting.ErrSubmitInProgress,
	booking.ErrDriverAlreadySelected, booking.ErrNegotiationOpen, booking.ErrNotNegotiating,
	booking.ErrNotAwaitingPayment, booking.ErrPaymentInProgress, booking.ErrInvalidTransition,
	registration.ErrFirstStep, registration.ErrSubmitted, registration.ErrSubmitInProgress,
	session.ErrEmailTaken, service.ErrNotPosted, service.ErrNotTracking,
}

func isConflict(err error) bool {
	for _, c := range conflicts {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}

func isRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

func newID() string { return uuid.NewString() }

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if v, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
