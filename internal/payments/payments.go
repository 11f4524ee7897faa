package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/sim"
)

// DefaultProcessingDelay is how long a simulated payment takes to settle.
const DefaultProcessingDelay = 1500 * time.Millisecond

var ErrUnsupportedMethod = errors.New("unsupported payment method")

type Charge struct {
	BookingID  string
	Amount     int64
	Currency   string
	Method     models.PaymentMethod
	CustomerID string
}

type Receipt struct {
	Ref    string               `json:"ref"`
	Method models.PaymentMethod `json:"method"`
	Amount int64                `json:"amount"`
	PaidAt time.Time            `json:"paid_at"`
}

// Processor settles a booking charge.
type Processor interface {
	Pay(ctx context.Context, c Charge) (Receipt, error)
}

type ProcessorFunc func(ctx context.Context, c Charge) (Receipt, error)

func (f ProcessorFunc) Pay(ctx context.Context, c Charge) (Receipt, error) { return f(ctx, c) }

// Simulated settles every charge after Delay.
type Simulated struct {
	Delay time.Duration
}

func (s Simulated) Pay(ctx context.Context, c Charge) (Receipt, error) {
	return sim.After(ctx, s.Delay, func() (Receipt, error) {
		return Receipt{Ref: string(c.Method) + "_" + uuid.NewString(), Method: c.Method, Amount: c.Amount, PaidAt: time.Now()}, nil
	})
}

// CardGateway is the subset of StripeClient used for card charges.
type CardGateway interface {
	Hold(ctx context.Context, c Charge) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Card holds then captures the amount; a failed capture releases the hold.
type Card struct {
	Gateway CardGateway
}

func (c Card) Pay(ctx context.Context, ch Charge) (Receipt, error) {
	id, err := c.Gateway.Hold(ctx, ch)
	if err != nil {
		return Receipt{}, fmt.Errorf("card hold: %w", err)
	}
	if err := c.Gateway.Capture(ctx, id); err != nil {
		if cerr := c.Gateway.Cancel(ctx, id); cerr != nil {
			return Receipt{}, errors.Join(fmt.Errorf("card capture: %w", err), fmt.Errorf("release hold: %w", cerr))
		}
		return Receipt{}, fmt.Errorf("card capture: %w", err)
	}
	return Receipt{Ref: id, Method: models.PayCard, Amount: ch.Amount, PaidAt: time.Now()}, nil
}

// Router picks a processor by payment method.
type Router map[models.PaymentMethod]Processor

func (r Router) Pay(ctx context.Context, c Charge) (Receipt, error) {
	p, ok := r[c.Method]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, c.Method)
	}
	return p.Pay(ctx, c)
}

// NewRouter routes card charges to card when it is non-nil and everything
// else to a simulated processor with delay.
func NewRouter(card Processor, delay time.Duration) Router {
	simulated := Simulated{Delay: delay}
	r := Router{
		models.PayMobileMoney: simulated,
		models.PayCard:        simulated,
		models.PayCash:        simulated,
	}
	if card != nil {
		r[models.PayCard] = card
	}
	return r
}
