package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

var (
	ErrUnknownDriver         = errors.New("driver is not a candidate for this cargo")
	ErrUnknownOffer          = errors.New("driver has no such offer")
	ErrDriverAlreadySelected = errors.New("a driver is already selected for this booking")
	ErrNegotiationOpen       = errors.New("finish or cancel the open negotiation first")
	ErrNotNegotiating        = errors.New("no negotiation is open")
	ErrInvalidOffer          = errors.New("Please enter an offer price")
	ErrNotAwaitingPayment    = errors.New("booking is not awaiting payment")
	ErrNoPaymentMethod       = errors.New("Please choose a payment method")
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
	ErrPaymentInProgress     = errors.New("payment is already being processed")
	ErrInvalidTransition     = errors.New("invalid booking transition")
)

// PaymentError wraps a failed payment. The booking stays at the payment stage.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string   { return fmt.Sprintf("Payment failed. Please try again. (%v)", e.Err) }
func (e *PaymentError) Unwrap() error   { return e.Err }
func (e *PaymentError) Retryable() bool { return true }

// View is a read-only snapshot of a flow.
type View struct {
	Status      models.BookingStatus `json:"status"`
	Candidates  []models.Candidate   `json:"candidates"`
	Negotiating *models.Driver       `json:"negotiating_with,omitempty"`
	Booking     *models.Booking      `json:"booking,omitempty"`
	Paying      bool                 `json:"paying"`
}

type Option func(*Flow)

// WithObserver registers fn to receive the booking after every status change.
// fn runs outside the flow lock, in transition order.
func WithObserver(fn func(models.Booking)) Option {
	return func(f *Flow) { f.observers = append(f.observers, fn) }
}

func WithCurrency(c string) Option { return func(f *Flow) { f.currency = c } }

func WithClock(now func() time.Time) Option { return func(f *Flow) { f.now = now } }

// Flow is the single-driver, single-offer booking state machine for one
// posted cargo. It is safe for concurrent use.
type Flow struct {
	mu         sync.Mutex
	notify     sync.Mutex
	id         string
	post       models.CargoPost
	candidates []models.Candidate
	status     models.BookingStatus
	driver     *models.Driver
	booking    *models.Booking
	method     models.PaymentMethod
	paying     bool
	payments   payments.Processor
	currency   string
	now        func() time.Time
	observers  []func(models.Booking)
}

func NewFlow(id string, post models.CargoPost, candidates []models.Candidate, proc payments.Processor, opts ...Option) *Flow {
	f := &Flow{
		id:         id,
		post:       post.Clone(),
		candidates: append([]models.Candidate(nil), candidates...),
		status:     models.StatusMatching,
		payments:   proc,
		currency:   "usd",
		now:        time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Flow) ID() string { return f.id }

func (f *Flow) Status() models.BookingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := View{Status: f.status, Candidates: append([]models.Candidate(nil), f.candidates...), Paying: f.paying}
	if f.status == models.StatusNegotiating && f.driver != nil {
		d := *f.driver
		v.Negotiating = &d
	}
	if f.booking != nil {
		b := *f.booking
		v.Booking = &b
	}
	return v
}

// Booking returns the booking once a price has been agreed.
func (f *Flow) Booking() (models.Booking, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booking == nil {
		return models.Booking{}, false
	}
	return *f.booking, true
}

// Accept books driverID at the listed price and skips negotiation.
func (f *Flow) Accept(driverID string) (models.Booking, error) {
	f.mu.Lock()
	if err := f.selectable(); err != nil {
		f.mu.Unlock()
		return models.Booking{}, err
	}
	d, err := f.candidate(driverID)
	if err != nil {
		f.mu.Unlock()
		return models.Booking{}, err
	}
	price, err := pricing.ParseAmount(d.Price)
	if err != nil {
		f.mu.Unlock()
		return models.Booking{}, fmt.Errorf("driver %s listed price: %w", d.ID, err)
	}
	f.driver = &d
	b := f.agree(price, models.PriceListed, "", "")
	f.release(b)
	return b, nil
}

// Negotiate opens a counter-offer entry with driverID.
func (f *Flow) Negotiate(driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.selectable(); err != nil {
		return err
	}
	d, err := f.candidate(driverID)
	if err != nil {
		return err
	}
	f.driver = &d
	f.status = models.StatusNegotiating
	return nil
}

// CancelNegotiation closes the offer entry. No booking exists yet, so the
// driver list is shown again.
func (f *Flow) CancelNegotiation() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != models.StatusNegotiating {
		return ErrNotNegotiating
	}
	f.driver = nil
	f.status = models.StatusMatching
	return nil
}

// SubmitOffer confirms the shipper's counter-offer as the agreed price.
func (f *Flow) SubmitOffer(price int64, message string) (models.Booking, error) {
	f.mu.Lock()
	if f.status != models.StatusNegotiating {
		f.mu.Unlock()
		return models.Booking{}, ErrNotNegotiating
	}
	if price <= 0 {
		f.mu.Unlock()
		return models.Booking{}, ErrInvalidOffer
	}
	if message == "" {
		message = fmt.Sprintf("I'm offering %s for this shipment", pricing.Format(price))
	}
	b := f.agree(price, models.PriceNegotiated, message, models.OfferByShipper)
	f.release(b)
	return b, nil
}

// TakeOffer confirms one of the negotiating driver's standing offers.
func (f *Flow) TakeOffer(offerID string) (models.Booking, error) {
	f.mu.Lock()
	if f.status != models.StatusNegotiating {
		f.mu.Unlock()
		return models.Booking{}, ErrNotNegotiating
	}
	var offer *models.DriverOffer
	for i := range f.driver.Offers {
		if f.driver.Offers[i].ID == offerID {
			offer = &f.driver.Offers[i]
			break
		}
	}
	if offer == nil {
		f.mu.Unlock()
		return models.Booking{}, fmt.Errorf("%w: %s", ErrUnknownOffer, offerID)
	}
	b := f.agree(offer.BasePrice, models.PriceNegotiated, offer.Message, models.OfferByDriver)
	f.release(b)
	return b, nil
}

func (f *Flow) SelectPaymentMethod(m models.PaymentMethod) error {
	canonical, ok := models.ParsePaymentMethod(string(m))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, m)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != models.StatusPayment {
		return ErrNotAwaitingPayment
	}
	if f.paying {
		return ErrPaymentInProgress
	}
	f.method = canonical
	f.booking.PaymentMethod = canonical
	return nil
}

// ConfirmPayment charges the total and, on success, moves the booking to
// paid and then tracking.
func (f *Flow) ConfirmPayment(ctx context.Context) (models.Booking, error) {
	f.mu.Lock()
	switch {
	case f.status != models.StatusPayment:
		f.mu.Unlock()
		return models.Booking{}, ErrNotAwaitingPayment
	case f.method == "":
		f.mu.Unlock()
		return models.Booking{}, ErrNoPaymentMethod
	case f.paying:
		f.mu.Unlock()
		return models.Booking{}, ErrPaymentInProgress
	}
	charge := payments.Charge{
		BookingID:  f.booking.ID,
		Amount:     f.booking.Total,
		Currency:   f.currency,
		Method:     f.method,
		CustomerID: f.post.OwnerID,
	}
	f.paying = true
	f.mu.Unlock()

	receipt, err := f.payments.Pay(ctx, charge)

	f.mu.Lock()
	f.paying = false
	if err != nil {
		f.mu.Unlock()
		return models.Booking{}, &PaymentError{Err: err}
	}
	f.booking.PaymentRef = receipt.Ref
	paid := f.transition(models.StatusPaid)
	tracking := f.transition(models.StatusTracking)
	f.release(paid, tracking)
	return tracking, nil
}

// MarkDelivered closes a booking whose delivery has arrived.
func (f *Flow) MarkDelivered() (models.Booking, error) {
	f.mu.Lock()
	if f.status != models.StatusTracking {
		f.mu.Unlock()
		return models.Booking{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.status, models.StatusDelivered)
	}
	b := f.transition(models.StatusDelivered)
	f.release(b)
	return b, nil
}

func (f *Flow) selectable() error {
	switch {
	case f.booking != nil:
		return ErrDriverAlreadySelected
	case f.status == models.StatusNegotiating:
		return ErrNegotiationOpen
	}
	return nil
}

func (f *Flow) candidate(id string) (models.Driver, error) {
	for _, c := range f.candidates {
		if c.Driver.ID == id {
			return c.Driver, nil
		}
	}
	return models.Driver{}, fmt.Errorf("%w: %s", ErrUnknownDriver, id)
}

// agree creates the booking; callers hold f.mu and have checked that no
// booking exists yet.
func (f *Flow) agree(price int64, src models.PriceSource, msg string, by models.OfferParty) models.Booking {
	now := f.now()
	d := *f.driver
	f.booking = &models.Booking{
		ID:             f.id,
		CargoPost:      f.post.Clone(),
		SelectedDriver: &d,
		AgreedPrice:    price,
		PriceSource:    src,
		OfferMessage:   msg,
		OfferBy:        by,
		ServiceFee:     pricing.ServiceFee(price),
		Total:          pricing.Total(price),
		CreatedAt:      now,
	}
	return f.transition(models.StatusPayment)
}

func (f *Flow) transition(to models.BookingStatus) models.Booking {
	if to.Rank() <= f.status.Rank() {
		panic(fmt.Sprintf("booking %s: non-monotonic transition %s -> %s", f.id, f.status, to))
	}
	f.status = to
	f.booking.Status = to
	f.booking.UpdatedAt = f.now()
	b := *f.booking
	if f.booking.SelectedDriver != nil {
		d := *f.booking.SelectedDriver
		b.SelectedDriver = &d
	}
	return b
}

// release unlocks f.mu and hands bs to the observers. The notify lock is taken
// before f.mu is dropped so observers see transitions in order.
func (f *Flow) release(bs ...models.Booking) {
	f.notify.Lock()
	defer f.notify.Unlock()
	f.mu.Unlock()
	for _, b := range bs {
		for _, fn := range f.observers {
			fn(b)
		}
	}
}
