package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

var ErrCardDeclined = errors.New("card declined")

// StripeClient places and settles booking card charges as manual-capture
// PaymentIntents. It carries its own API client so the key is not global.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}
}

// Hold reserves the booking total on the card. The booking id is the
// idempotency key, so a retried payment never holds twice.
func (s *StripeClient) Hold(ctx context.Context, c Charge) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(c.Amount),
		Currency:      stripe.String(c.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Cargo booking " + c.BookingID),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", c.BookingID)
	params.SetIdempotencyKey("hold-" + c.BookingID)
	if c.CustomerID != "" {
		params.AddMetadata("customer_id", c.CustomerID)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", stripeErr(err)
	}
	return pi.ID, nil
}

func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Capture(paymentIntentID, params)
	return stripeErr(err)
}

func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(paymentIntentID, params)
	return stripeErr(err)
}

// stripeErr maps card declines onto ErrCardDeclined and keeps the rest as is.
func stripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.Type == stripe.ErrorTypeCard || se.Code == stripe.ErrorCodeCardDeclined) {
		return fmt.Errorf("%w: %s", ErrCardDeclined, se.Msg)
	}
	return err
}
