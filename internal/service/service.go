// Package service owns the live wizard instances and wires them to storage,
// events, matching, payments and tracking.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mutombe/cargo-space/internal/booking"
	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/events"
	"github.com/Mutombe/cargo-space/internal/matcher"
	"github.com/Mutombe/cargo-space/internal/messaging"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/nav"
	"github.com/Mutombe/cargo-space/internal/observability"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/posting"
	"github.com/Mutombe/cargo-space/internal/registration"
	"github.com/Mutombe/cargo-space/internal/storage"
	"github.com/Mutombe/cargo-space/internal/tracking"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNotPosted   = errors.New("cargo has not been posted yet")
	ErrNotTracking = errors.New("booking is not being tracked")
)

// Pusher sends live updates to connected clients.
type Pusher interface {
	Send(key string, v any) error
}

// Candidates is the driver listing step.
type Candidates interface {
	Candidates(ctx context.Context, post models.CargoPost) ([]models.Candidate, error)
}

type Deps struct {
	Store     storage.BookingStore
	Events    events.Publisher
	Matcher   Candidates
	Payments  payments.Processor
	Push      Pusher // optional
	Catalog   *catalog.Catalog
	Inbox     *messaging.Inbox
	Log       *zap.Logger
	PostDelay time.Duration
	RegDelay  time.Duration
	Currency  string
	Tracking  tracking.Config
}

type shipment struct {
	owner   string
	stepper *posting.Stepper
	flow    *booking.Flow
	tracker *tracking.Tracker
}

type Service struct {
	deps   Deps
	log    *zap.Logger
	poster posting.Poster

	mu            sync.Mutex
	shipments     map[string]*shipment // by cargo ID
	registrations map[string]*registrationEntry
	enterprises   map[string]*enterpriseEntry

	base    context.Context
	cancel  context.CancelFunc
	workers errgroup.Group
	closed  bool
}

type registrationEntry struct {
	owner  string
	wizard *registration.Wizard
}

type enterpriseEntry struct {
	owner  string
	wizard *registration.EnterpriseWizard
}

func New(d Deps) (*Service, error) {
	if d.Store == nil || d.Matcher == nil || d.Payments == nil || d.Catalog == nil {
		return nil, errors.New("service: store, matcher, payments and catalog are required")
	}
	if err := d.Tracking.Validate(); err != nil {
		return nil, err
	}
	if d.Events == nil {
		d.Events = &events.Memory{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Inbox == nil {
		d.Inbox = messaging.NewInbox(nil)
	}
	s := &Service{
		deps:          d,
		log:           d.Log,
		shipments:     make(map[string]*shipment),
		registrations: make(map[string]*registrationEntry),
		enterprises:   make(map[string]*enterpriseEntry),
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.poster = posting.Delayed(d.PostDelay, posting.PosterFunc(s.savePost))
	return s, nil
}

// Close stops every tracker and waits for them to exit.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	return s.workers.Wait()
}

func (s *Service) Catalog() *catalog.Catalog { return s.deps.Catalog }

func (s *Service) Inbox() *messaging.Inbox { return s.deps.Inbox }

// NewPost starts a cargo posting wizard for owner.
func (s *Service) NewPost(owner string) *posting.Stepper {
	id := uuid.NewString()
	st := posting.New(id, owner, s.poster)
	s.mu.Lock()
	s.shipments[id] = &shipment{owner: owner, stepper: st}
	s.mu.Unlock()
	return st
}

func (s *Service) Post(owner, cargoID string) (*posting.Stepper, error) {
	sh, err := s.shipment(owner, cargoID)
	if err != nil {
		return nil, err
	}
	return sh.stepper, nil
}

// Advance moves the posting wizard on and counts rejected steps.
func (s *Service) Advance(owner, cargoID string) (posting.Snapshot, error) {
	st, err := s.Post(owner, cargoID)
	if err != nil {
		return posting.Snapshot{}, err
	}
	if err := st.Advance(); err != nil {
		var verr *posting.ValidationError
		if errors.As(err, &verr) {
			observability.ValidationFailures.WithLabelValues("cargo", verr.Stage.String()).Inc()
		}
		return st.Snapshot(), err
	}
	return st.Snapshot(), nil
}

// SubmitPost posts the cargo and returns it with the path of the next screen.
func (s *Service) SubmitPost(ctx context.Context, owner, cargoID string) (models.CargoPost, string, error) {
	st, err := s.Post(owner, cargoID)
	if err != nil {
		return models.CargoPost{}, "", err
	}
	post, err := st.Submit(ctx)
	observability.PostsSubmitted.WithLabelValues(observability.Result(err)).Inc()
	if err != nil {
		return models.CargoPost{}, "", err
	}
	s.log.Info("cargo posted",
		zap.String("cargo_id", post.ID),
		zap.String("mode", string(post.TransportMode)),
		zap.Int64("estimate", post.EstimatedCost))
	return post, nav.FindDriversFor(post.ID), nil
}

func (s *Service) savePost(ctx context.Context, post models.CargoPost) (models.CargoPost, error) {
	if err := s.deps.Store.SaveCargo(ctx, post); err != nil {
		return models.CargoPost{}, fmt.Errorf("save cargo: %w", err)
	}
	return post, nil
}

// Drivers lists the candidates for a posted cargo and opens its booking flow.
// Later calls return the same flow.
func (s *Service) Drivers(ctx context.Context, owner, cargoID string) (*booking.Flow, error) {
	sh, err := s.shipment(owner, cargoID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	f := sh.flow
	s.mu.Unlock()
	if f != nil {
		return f, nil
	}
	if !sh.stepper.Snapshot().Finalized {
		return nil, ErrNotPosted
	}
	post := sh.stepper.Snapshot().Post
	cands, err := s.deps.Matcher.Candidates(ctx, post)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.flow != nil {
		return sh.flow, nil
	}
	opts := []booking.Option{booking.WithObserver(s.onBooking)}
	if s.deps.Currency != "" {
		opts = append(opts, booking.WithCurrency(s.deps.Currency))
	}
	sh.flow = booking.NewFlow(uuid.NewString(), post, cands, s.deps.Payments, opts...)
	return sh.flow, nil
}

// Flow returns the booking flow of a cargo whose drivers were listed.
func (s *Service) Flow(owner, cargoID string) (*booking.Flow, error) {
	sh, err := s.shipment(owner, cargoID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.flow == nil {
		return nil, fmt.Errorf("%w: no drivers listed for %s", ErrNotFound, cargoID)
	}
	return sh.flow, nil
}

// Pay confirms payment and returns the booking with the path of the tracking screen.
func (s *Service) Pay(ctx context.Context, owner, cargoID string) (models.Booking, string, error) {
	f, err := s.Flow(owner, cargoID)
	if err != nil {
		return models.Booking{}, "", err
	}
	b, err := f.ConfirmPayment(ctx)
	method := "none"
	if cur, ok := f.Booking(); ok && cur.PaymentMethod != "" {
		method = string(cur.PaymentMethod)
	}
	if !errors.Is(err, booking.ErrNoPaymentMethod) && !errors.Is(err, booking.ErrNotAwaitingPayment) && !errors.Is(err, booking.ErrPaymentInProgress) {
		observability.PaymentsTotal.WithLabelValues(method, observability.Result(err)).Inc()
	}
	if err != nil {
		return models.Booking{}, "", err
	}
	return b, nav.TrackingFor(cargoID), nil
}

// Tracking returns the latest position of a booking in transit.
func (s *Service) Tracking(owner, cargoID string) (tracking.Update, error) {
	sh, err := s.shipment(owner, cargoID)
	if err != nil {
		return tracking.Update{}, err
	}
	s.mu.Lock()
	tr := sh.tracker
	s.mu.Unlock()
	if tr == nil {
		return tracking.Update{}, ErrNotTracking
	}
	return tr.Snapshot(), nil
}

// Bookings lists owner's bookings for the dashboard.
func (s *Service) Bookings(ctx context.Context, owner string) ([]models.Booking, error) {
	return s.deps.Store.ListBookings(ctx, owner)
}

func (s *Service) shipment(owner, cargoID string) (*shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[cargoID]
	if !ok || sh.owner != owner {
		return nil, fmt.Errorf("%w: cargo %s", ErrNotFound, cargoID)
	}
	return sh, nil
}

// onBooking runs after every booking transition, in order.
func (s *Service) onBooking(b models.Booking) {
	observability.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	ctx, cancel := context.WithTimeout(s.base, 5*time.Second)
	defer cancel()
	if err := s.deps.Store.SaveBooking(ctx, b); err != nil {
		s.log.Error("save booking", zap.String("booking_id", b.ID), zap.Error(err))
	}
	if err := s.deps.Events.Publish(ctx, events.FromBooking(b)); err != nil {
		s.log.Warn("publish booking event", zap.String("booking_id", b.ID), zap.Error(err))
	}
	s.log.Info("booking status changed",
		zap.String("booking_id", b.ID),
		zap.String("cargo_id", b.CargoPost.ID),
		zap.String("status", string(b.Status)))

	switch b.Status {
	case models.StatusPaid:
		if b.SelectedDriver != nil {
			from := messaging.FromDriver
			if b.OfferBy == models.OfferByShipper {
				from = messaging.FromUser
			}
			s.deps.Inbox.Start(b.CargoPost.OwnerID,
				messaging.Participant{ID: b.SelectedDriver.ID, Name: b.SelectedDriver.Name, Vehicle: b.SelectedDriver.Vehicle},
				messaging.CargoRef{ID: b.CargoPost.ID, Title: b.CargoPost.Details.Title, Status: string(b.Status)},
				b.OfferMessage, from)
		}
	case models.StatusTracking:
		s.startTracking(b)
	}
}

func (s *Service) startTracking(b models.Booking) {
	if b.CargoPost.Dropoff == nil {
		s.log.Error("booking has no dropoff", zap.String("booking_id", b.ID))
		return
	}
	from := b.CargoPost.Dropoff.Coord
	if b.CargoPost.Pickup != nil {
		from = b.CargoPost.Pickup.Coord
	}
	if b.SelectedDriver != nil && b.SelectedDriver.Loc != (models.Coord{}) {
		from = b.SelectedDriver.Loc
	}
	tr, err := tracking.New(b.ID, from, b.CargoPost.Dropoff.Coord, s.deps.Tracking)
	if err != nil {
		s.log.Error("start tracking", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	cargoID := b.CargoPost.ID

	s.mu.Lock()
	sh, ok := s.shipments[cargoID]
	if !ok || s.closed || sh.tracker != nil {
		s.mu.Unlock()
		return
	}
	sh.tracker = tr
	flow := sh.flow
	// Registered under mu so Close cannot reach Wait before this worker is counted.
	defer s.mu.Unlock()

	s.workers.Go(func() error {
		err := tr.Run(s.base, s.deps.Tracking.Interval, func(u tracking.Update) {
			if s.deps.Push != nil {
				_ = s.deps.Push.Send(TrackingKey(cargoID), u)
			}
		})
		if err != nil {
			return nil
		}
		if flow != nil {
			if _, err := flow.MarkDelivered(); err != nil {
				s.log.Error("mark delivered", zap.String("booking_id", b.ID), zap.Error(err))
			}
		}
		return nil
	})
}

// TrackingKey is the push key live tracking updates are sent under.
func TrackingKey(cargoID string) string { return "booking:" + cargoID }

// NewRegistration starts a driver registration wizard for userID.
func (s *Service) NewRegistration(userID string) *registration.Wizard {
	id := uuid.NewString()
	w := registration.New(id, userID, registration.Delayed(s.deps.RegDelay))
	s.mu.Lock()
	s.registrations[id] = &registrationEntry{owner: userID, wizard: w}
	s.mu.Unlock()
	return w
}

func (s *Service) Registration(userID, id string) (*registration.Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.registrations[id]
	if !ok || e.owner != userID {
		return nil, fmt.Errorf("%w: registration %s", ErrNotFound, id)
	}
	return e.wizard, nil
}

// NextRegistrationStep validates and advances a registration, counting rejections.
func (s *Service) NextRegistrationStep(ctx context.Context, userID, id string) (registration.Application, registration.Step, error) {
	w, err := s.Registration(userID, id)
	if err != nil {
		return registration.Application{}, 0, err
	}
	step, err := w.Next(ctx)
	var verr *registration.ValidationError
	if errors.As(err, &verr) {
		observability.ValidationFailures.WithLabelValues("driver", verr.Stage).Inc()
	}
	if err == nil && step == registration.StepComplete {
		s.log.Info("driver registration submitted", zap.String("registration_id", id))
	}
	return w.Application(), step, err
}

// NewEnterpriseRegistration starts an enterprise registration wizard for userID.
func (s *Service) NewEnterpriseRegistration(userID string) *registration.EnterpriseWizard {
	id := uuid.NewString()
	w := registration.NewEnterprise(id, userID, registration.DelayedEnterprise(s.deps.RegDelay))
	s.mu.Lock()
	s.enterprises[id] = &enterpriseEntry{owner: userID, wizard: w}
	s.mu.Unlock()
	return w
}

func (s *Service) EnterpriseRegistration(userID, id string) (*registration.EnterpriseWizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enterprises[id]
	if !ok || e.owner != userID {
		return nil, fmt.Errorf("%w: enterprise registration %s", ErrNotFound, id)
	}
	return e.wizard, nil
}

func (s *Service) NextEnterpriseStep(ctx context.Context, userID, id string) (registration.EnterpriseApplication, registration.Step, error) {
	w, err := s.EnterpriseRegistration(userID, id)
	if err != nil {
		return registration.EnterpriseApplication{}, 0, err
	}
	step, err := w.Next(ctx)
	var verr *registration.ValidationError
	if errors.As(err, &verr) {
		observability.ValidationFailures.WithLabelValues("enterprise", verr.Stage).Inc()
	}
	if err == nil && step == registration.StepComplete {
		app := w.Application()
		s.log.Info("enterprise registration submitted",
			zap.String("registration_id", id),
			zap.String("company", app.Company.Name),
			zap.Int("fleet_size", app.VehicleCount()))
	}
	return w.Application(), step, err
}

var _ Candidates = (*matcher.Service)(nil)
