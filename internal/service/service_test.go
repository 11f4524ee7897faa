package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Mutombe/cargo-space/internal/booking"
	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/events"
	"github.com/Mutombe/cargo-space/internal/messaging"
	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/posting"
	"github.com/Mutombe/cargo-space/internal/registration"
	"github.com/Mutombe/cargo-space/internal/storage"
	"github.com/Mutombe/cargo-space/internal/tracking"
)

type candidatesFunc func(ctx context.Context, post models.CargoPost) ([]models.Candidate, error)

func (f candidatesFunc) Candidates(ctx context.Context, post models.CargoPost) ([]models.Candidate, error) {
	return f(ctx, post)
}

type recordingPush struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingPush) Send(key string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func (r *recordingPush) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

type fixture struct {
	svc    *Service
	store  *storage.MemoryStore
	events *events.Memory
	push   *recordingPush
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	drivers := cat.Drivers
	cfg := tracking.DefaultConfig()
	cfg.Interval = time.Millisecond
	cfg.StepFraction = 0.5
	f := &fixture{store: storage.NewMemoryStore(), events: &events.Memory{}, push: &recordingPush{}}
	f.svc, err = New(Deps{
		Store:  f.store,
		Events: f.events,
		Matcher: candidatesFunc(func(ctx context.Context, post models.CargoPost) ([]models.Candidate, error) {
			out := make([]models.Candidate, 0, len(drivers))
			for _, d := range drivers {
				out = append(out, models.Candidate{Driver: d})
			}
			return out, nil
		}),
		Payments: payments.NewRouter(nil, 0),
		Push:     f.push,
		Catalog:  cat,
		Inbox:    messaging.NewInbox(nil),
		Tracking: cfg,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func fillPost(t *testing.T, st *posting.Stepper, cat *catalog.Catalog) {
	t.Helper()
	pickup, _ := cat.Location("Harare CBD")
	steps := []func() error{
		func() error { return st.SetCargoType(models.CargoFurniture) },
		st.Advance,
		func() error { return st.SetPickup(pickup) },
		func() error { return st.SetDropoff(catalog.Pinned(models.Coord{Lat: -17.832123, Lon: 31.042345})) },
		st.Advance,
		func() error { return st.SetTitle("Office Furniture") },
		func() error { return st.SetWeight(120) },
		func() error { return st.SetFragile(true) },
		st.Advance,
		func() error { return st.SetTransportMode(models.ModeSmallTruck) },
		st.Advance,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestBookingEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	ctx := context.Background()

	st := f.svc.NewPost("u1")
	id := st.Snapshot().ID
	if _, err := f.svc.Drivers(ctx, "u1", id); !errors.Is(err, ErrNotPosted) {
		t.Fatalf("expected ErrNotPosted, got %v", err)
	}
	fillPost(t, st, f.svc.Catalog())
	post, next, err := f.svc.SubmitPost(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if post.EstimatedCost != 5500 || next != "/find-drivers/"+id {
		t.Fatalf("unexpected post %d next %q", post.EstimatedCost, next)
	}
	if _, err := f.store.GetCargo(ctx, id); err != nil {
		t.Fatalf("cargo not stored: %v", err)
	}

	flow, err := f.svc.Drivers(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := f.svc.Drivers(ctx, "u1", id)
	if again != flow {
		t.Fatal("expected the same flow on a second listing")
	}
	if _, err := flow.Accept("1"); err != nil {
		t.Fatal(err)
	}
	if err := flow.SelectPaymentMethod("cash"); err != nil {
		t.Fatal(err)
	}
	b, next, err := f.svc.Pay(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusTracking || next != "/tracking/"+id {
		t.Fatalf("unexpected booking %s next %q", b.Status, next)
	}

	deadline := time.Now().Add(5 * time.Second)
	for flow.Status() != models.StatusDelivered {
		if time.Now().After(deadline) {
			t.Fatal("delivery never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := f.svc.Close(); err != nil {
		t.Fatal(err)
	}

	stored, err := f.store.GetBooking(ctx, b.ID)
	if err != nil || stored.Status != models.StatusDelivered {
		t.Fatalf("stored booking %+v %v", stored, err)
	}
	var statuses []models.BookingStatus
	for _, ev := range f.events.Events() {
		statuses = append(statuses, ev.Status)
	}
	want := []models.BookingStatus{models.StatusPayment, models.StatusPaid, models.StatusTracking, models.StatusDelivered}
	if len(statuses) != len(want) {
		t.Fatalf("events %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("events %v, want %v", statuses, want)
		}
	}
	if f.push.count() == 0 {
		t.Fatal("no tracking updates pushed")
	}
	u, err := f.svc.Tracking("u1", id)
	if err != nil || u.State != tracking.Delivered {
		t.Fatalf("tracking snapshot %+v %v", u, err)
	}
	if convos := f.svc.Inbox().Search("u1", "office"); len(convos) != 1 {
		t.Fatalf("expected a conversation with the booked driver, got %d", len(convos))
	}
	list, _ := f.svc.Bookings(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected one booking on the dashboard, got %d", len(list))
	}
}

func TestOwnershipIsChecked(t *testing.T) {
	f := newFixture(t)
	defer f.svc.Close()
	st := f.svc.NewPost("u1")
	if _, err := f.svc.Post("u2", st.Snapshot().ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user, got %v", err)
	}
	if _, err := f.svc.Flow("u1", st.Snapshot().ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before listing, got %v", err)
	}
	if _, err := f.svc.Tracking("u1", st.Snapshot().ID); !errors.Is(err, ErrNotTracking) {
		t.Fatalf("expected ErrNotTracking, got %v", err)
	}
}

func TestAdvanceReportsValidation(t *testing.T) {
	f := newFixture(t)
	defer f.svc.Close()
	st := f.svc.NewPost("u1")
	_ = st.Advance()
	snap, err := f.svc.Advance("u1", st.Snapshot().ID)
	var verr *posting.ValidationError
	if !errors.As(err, &verr) || snap.Stage != posting.StageLocations {
		t.Fatalf("expected validation error at locations, got %v at %v", err, snap.Stage)
	}
}

func TestPayWithoutMethod(t *testing.T) {
	f := newFixture(t)
	defer f.svc.Close()
	st := f.svc.NewPost("u1")
	fillPost(t, st, f.svc.Catalog())
	id := st.Snapshot().ID
	if _, _, err := f.svc.SubmitPost(context.Background(), "u1", id); err != nil {
		t.Fatal(err)
	}
	flow, err := f.svc.Drivers(context.Background(), "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = flow.Accept("4")
	if _, _, err := f.svc.Pay(context.Background(), "u1", id); !errors.Is(err, booking.ErrNoPaymentMethod) {
		t.Fatalf("expected ErrNoPaymentMethod, got %v", err)
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	f := newFixture(t)
	defer f.svc.Close()
	w := f.svc.NewRegistration("u1")
	id := w.Application().ID
	_ = w.SetVehicleType(models.ModeBike)
	_ = w.SetDriverDetails(registration.DriverDetails{FullName: "Takunda Moyo", Phone: "077"})
	_ = w.AttachDocument(registration.DocLicenseFront, "a")
	_ = w.AttachDocument(registration.DocVehicleRegistration, "b")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, _, err := f.svc.NextRegistrationStep(ctx, "u1", id); err != nil {
			t.Fatal(err)
		}
	}
	app, step, err := f.svc.NextRegistrationStep(ctx, "u1", id)
	if err != nil || step != registration.StepComplete || app.Status != registration.StatusUnderReview {
		t.Fatalf("unexpected result %v %v %v", app.Status, step, err)
	}
	if _, err := f.svc.Registration("u2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaidConversationKeepsOfferAuthor(t *testing.T) {
	cases := []struct {
		name   string
		agree  func(f *booking.Flow) error
		sender messaging.Sender
		text   string
		unread int
	}{
		{
			name: "shipper counter-offer",
			agree: func(f *booking.Flow) error {
				_, err := f.SubmitOffer(3000, "")
				return err
			},
			sender: messaging.FromUser,
			text:   "I'm offering ZWL 3,000 for this shipment",
		},
		{
			name: "driver standing offer",
			agree: func(f *booking.Flow) error {
				_, err := f.TakeOffer("1")
				return err
			},
			sender: messaging.FromDriver,
			text:   "I can pick up now",
			unread: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			f := newFixture(t)
			ctx := context.Background()
			st := f.svc.NewPost("u1")
			fillPost(t, st, f.svc.Catalog())
			id := st.Snapshot().ID
			if _, _, err := f.svc.SubmitPost(ctx, "u1", id); err != nil {
				t.Fatal(err)
			}
			flow, err := f.svc.Drivers(ctx, "u1", id)
			if err != nil {
				t.Fatal(err)
			}
			if err := flow.Negotiate("1"); err != nil {
				t.Fatal(err)
			}
			if err := tc.agree(flow); err != nil {
				t.Fatal(err)
			}
			if err := flow.SelectPaymentMethod("cash"); err != nil {
				t.Fatal(err)
			}
			if _, _, err := f.svc.Pay(ctx, "u1", id); err != nil {
				t.Fatal(err)
			}
			if err := f.svc.Close(); err != nil {
				t.Fatal(err)
			}

			listed := f.svc.Inbox().Search("u1", "office")
			if len(listed) != 1 || listed[0].Unread != tc.unread {
				t.Fatalf("unexpected conversations %+v", listed)
			}
			c, err := f.svc.Inbox().Open("u1", "1:"+id)
			if err != nil {
				t.Fatal(err)
			}
			if len(c.Messages) != 1 || c.Messages[0].Sender != tc.sender || c.Messages[0].Text != tc.text {
				t.Fatalf("unexpected opening %+v", c.Messages)
			}
		})
	}
}

func TestCloseWhileTrackingStarts(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	ctx := context.Background()
	st := f.svc.NewPost("u1")
	fillPost(t, st, f.svc.Catalog())
	id := st.Snapshot().ID
	if _, _, err := f.svc.SubmitPost(ctx, "u1", id); err != nil {
		t.Fatal(err)
	}
	flow, err := f.svc.Drivers(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Accept("2"); err != nil {
		t.Fatal(err)
	}
	if err := flow.SelectPaymentMethod("cash"); err != nil {
		t.Fatal(err)
	}

	paid := make(chan error, 1)
	go func() {
		_, _, err := f.svc.Pay(ctx, "u1", id)
		paid <- err
	}()
	if err := f.svc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-paid; err != nil {
		t.Fatal(err)
	}
	// A tracker registered after Close must not be left running.
	if err := f.svc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEnterpriseRegistrationLifecycle(t *testing.T) {
	f := newFixture(t)
	defer f.svc.Close()
	w := f.svc.NewEnterpriseRegistration("u1")
	id := w.Application().ID
	ctx := context.Background()
	var verr *registration.ValidationError
	if _, _, err := f.svc.NextEnterpriseStep(ctx, "u1", id); !errors.As(err, &verr) {
		t.Fatalf("expected company validation error, got %v", err)
	}
	_ = w.SetCompany(registration.CompanyInfo{Name: "Zim Freight", RegistrationNumber: "1234/2019"})
	_ = w.SetFleetCount(models.ModeLargeTruck, 5)
	for i := 0; i < 2; i++ {
		if _, _, err := f.svc.NextEnterpriseStep(ctx, "u1", id); err != nil {
			t.Fatal(err)
		}
	}
	app, step, err := f.svc.NextEnterpriseStep(ctx, "u1", id)
	if err != nil || step != registration.StepComplete || app.Status != registration.StatusUnderReview || app.VehicleCount() != 5 {
		t.Fatalf("unexpected result %+v %v %v", app, step, err)
	}
	if _, err := f.svc.EnterpriseRegistration("u2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Registration("u1", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("driver and enterprise registrations must not share IDs, got %v", err)
	}
}
