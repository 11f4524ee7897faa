package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/events"
	"github.com/Mutombe/cargo-space/internal/geo"
	"github.com/Mutombe/cargo-space/internal/logging"
	"github.com/Mutombe/cargo-space/internal/matcher"
	"github.com/Mutombe/cargo-space/internal/messaging"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/pricing"
	"github.com/Mutombe/cargo-space/internal/service"
	"github.com/Mutombe/cargo-space/internal/storage"
	"github.com/Mutombe/cargo-space/internal/tracking"
)

type bookOptions struct {
	From     string
	To       string
	Title    string
	WeightKg float64
	Mode     string
	Fragile  bool
	Handling bool
	Driver   string
	Offer    string
	Method   string
	Fast     bool
	LogLevel string
	Timeout  time.Duration
}

func newBookCmd() *cobra.Command {
	o := bookOptions{}
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Post a cargo, book a driver, pay and track it to delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
			defer cancel()
			_, err := runBooking(ctx, o, cmd.OutOrStdout())
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.From, "from", "Harare CBD", "pickup location name")
	f.StringVar(&o.To, "to", "Chitungwiza", "dropoff location name")
	f.StringVar(&o.Title, "title", "Office Furniture", "cargo title")
	f.Float64Var(&o.WeightKg, "weight", 120, "cargo weight in kg")
	f.StringVar(&o.Mode, "mode", string(models.ModeSmallTruck), "transport mode")
	f.BoolVar(&o.Fragile, "fragile", false, "cargo is fragile")
	f.BoolVar(&o.Handling, "handling", false, "cargo requires special handling")
	f.StringVar(&o.Driver, "driver", "", "driver id to book, the best candidate when empty")
	f.StringVar(&o.Offer, "offer", "", "counter-offer price; books at the listed price when empty")
	f.StringVar(&o.Method, "method", "ecocash", "payment method: ecocash, visa or cash")
	f.BoolVar(&o.Fast, "fast", false, "skip simulated delays and track in a few steps")
	f.StringVar(&o.LogLevel, "log-level", "warn", "log level")
	f.DurationVar(&o.Timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

// printer writes tracking updates as they are pushed.
type printer struct{ out io.Writer }

func (p printer) Send(_ string, v any) error {
	if u, ok := v.(tracking.Update); ok {
		fmt.Fprintf(p.out, "  tick %-3d %-10s %5.1f%%  %.3f km to go\n", u.Tick, u.State, u.Progress*100, u.DistanceKm)
	}
	return nil
}

func runBooking(ctx context.Context, o bookOptions, out io.Writer) (models.Booking, error) {
	log := logging.NewLogger(o.LogLevel, logging.FileOptions{})
	defer func() { _ = log.Sync() }()

	cat, err := catalog.Default()
	if err != nil {
		return models.Booking{}, err
	}
	pickup, ok := cat.Location(o.From)
	if !ok {
		return models.Booking{}, fmt.Errorf("unknown pickup %q", o.From)
	}
	dropoff, ok := cat.Location(o.To)
	if !ok {
		return models.Booking{}, fmt.Errorf("unknown dropoff %q", o.To)
	}
	method, ok := models.ParsePaymentMethod(o.Method)
	if !ok {
		return models.Booking{}, fmt.Errorf("unknown payment method %q", o.Method)
	}

	idx := geo.NewIndex()
	if err := matcher.Seed(ctx, idx, cat.Drivers); err != nil {
		return models.Booking{}, err
	}
	trk := tracking.DefaultConfig()
	delay := func(d time.Duration) time.Duration { return d }
	if o.Fast {
		trk.Interval = 10 * time.Millisecond
		trk.StepFraction = 0.5
		delay = func(time.Duration) time.Duration { return 0 }
	}
	pub := &events.Memory{}
	svc, err := service.New(service.Deps{
		Store:     storage.NewMemoryStore(),
		Events:    pub,
		Matcher:   &matcher.Service{Geo: idx, DefaultSpeedMps: 10, TopN: 8, LoadDelay: delay(time.Second)},
		Payments:  payments.NewRouter(nil, delay(payments.DefaultProcessingDelay)),
		Push:      printer{out: out},
		Catalog:   cat,
		Inbox:     messaging.NewInbox(nil),
		Log:       log,
		PostDelay: delay(1500 * time.Millisecond),
		Tracking:  trk,
	})
	if err != nil {
		return models.Booking{}, err
	}
	defer svc.Close()

	const owner = "cli"
	st := svc.NewPost(owner)
	id := st.Snapshot().ID
	steps := []func() error{
		func() error { return st.SetCargoType(models.CargoGeneral) },
		st.Advance,
		func() error { return st.SetPickup(pickup) },
		func() error { return st.SetDropoff(dropoff) },
		st.Advance,
		func() error { return st.SetTitle(o.Title) },
		func() error { return st.SetWeight(o.WeightKg) },
		func() error { return st.SetFragile(o.Fragile) },
		func() error { return st.SetRequiresHandling(o.Handling) },
		st.Advance,
		func() error { return st.SetTransportMode(models.TransportMode(o.Mode)) },
		st.Advance,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return models.Booking{}, err
		}
	}
	post, _, err := svc.SubmitPost(ctx, owner, id)
	if err != nil {
		return models.Booking{}, err
	}
	fmt.Fprintf(out, "posted %q %s -> %s, estimate %s\n", post.Details.Title, pickup.Name, dropoff.Name, pricing.Format(post.EstimatedCost))

	flow, err := svc.Drivers(ctx, owner, id)
	if err != nil {
		return models.Booking{}, err
	}
	cands := flow.View().Candidates
	if len(cands) == 0 {
		return models.Booking{}, matcher.ErrNoDrivers
	}
	driverID := o.Driver
	if driverID == "" {
		driverID = cands[0].Driver.ID
	}
	for _, c := range cands {
		fmt.Fprintf(out, "  driver %-2s %-20s %-12s %.1f km\n", c.Driver.ID, c.Driver.Name, c.Driver.Price, c.DistanceKm)
	}

	var b models.Booking
	if o.Offer == "" {
		b, err = flow.Accept(driverID)
	} else {
		var price int64
		if price, err = pricing.ParseOffer(o.Offer); err != nil {
			return models.Booking{}, err
		}
		if err = flow.Negotiate(driverID); err == nil {
			b, err = flow.SubmitOffer(price, "")
		}
	}
	if err != nil {
		return models.Booking{}, err
	}
	fmt.Fprintf(out, "booked %s at %s (%s), total %s\n", b.SelectedDriver.Name, pricing.Format(b.AgreedPrice), b.PriceSource, pricing.Format(b.Total))

	if err := flow.SelectPaymentMethod(method); err != nil {
		return models.Booking{}, err
	}
	if b, _, err = svc.Pay(ctx, owner, id); err != nil {
		return models.Booking{}, err
	}
	fmt.Fprintf(out, "paid %s by %s, ref %s\n", pricing.Format(b.Total), b.PaymentMethod, b.PaymentRef)

	tick := time.NewTicker(trk.Interval / 2)
	defer tick.Stop()
	for !delivered(pub.Events()) {
		select {
		case <-ctx.Done():
			return models.Booking{}, ctx.Err()
		case <-tick.C:
		}
	}
	b, _ = flow.Booking()
	fmt.Fprintf(out, "delivered, %d booking events published\n", len(pub.Events()))
	log.Debug("simulation finished", zap.String("booking_id", b.ID))
	return b, nil
}

func delivered(evs []models.BookingEvent) bool {
	return len(evs) > 0 && evs[len(evs)-1].Status == models.StatusDelivered
}
