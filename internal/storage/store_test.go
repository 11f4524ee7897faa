package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Mutombe/cargo-space/internal/models"
)

func booking(id, owner string, status models.BookingStatus, at time.Time) models.Booking {
	return models.Booking{
		ID:             id,
		CargoPost:      models.CargoPost{ID: "c-" + id, OwnerID: owner, Type: models.CargoGeneral, TransportMode: models.ModeCar, Details: models.CargoDetails{Title: "Boxes", Images: []string{"a.jpg"}}},
		SelectedDriver: &models.Driver{ID: "1", Name: "Tinashe Chikomo"},
		AgreedPrice:    4500,
		PriceSource:    models.PriceListed,
		ServiceFee:     450,
		Total:          4950,
		Status:         status,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func exerciseStore(t *testing.T, s BookingStore) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.NewString()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	b := booking(uuid.NewString(), owner, models.StatusPayment, t0)
	if err := s.SaveCargo(ctx, b.CargoPost); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	paid := b
	paid.Status, paid.PaymentRef, paid.UpdatedAt = models.StatusPaid, "ref", t0.Add(time.Second)
	if err := s.SaveBooking(ctx, paid); err != nil {
		t.Fatal(err)
	}
	// a late replay of the payment status must not win
	if err := s.SaveBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPaid || got.PaymentRef != "ref" {
		t.Fatalf("expected paid booking, got %s %q", got.Status, got.PaymentRef)
	}

	other := booking(uuid.NewString(), owner, models.StatusPayment, t0.Add(2*time.Second))
	_ = s.SaveCargo(ctx, other.CargoPost)
	_ = s.SaveBooking(ctx, other)
	list, err := s.ListBookings(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != other.ID {
		t.Fatalf("expected newest first, got %d bookings", len(list))
	}

	if _, err := s.GetBooking(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetCargo(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	post, err := s.GetCargo(ctx, b.CargoPost.ID)
	if err != nil || post.Details.Title != "Boxes" {
		t.Fatalf("cargo round trip: %+v %v", post, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	b := booking("b1", "u1", models.StatusPayment, time.Now())
	_ = s.SaveBooking(context.Background(), b)
	b.CargoPost.Details.Images[0] = "changed.jpg"
	b.SelectedDriver.Name = "changed"
	got, _ := s.GetBooking(context.Background(), "b1")
	if got.CargoPost.Details.Images[0] != "a.jpg" || got.SelectedDriver.Name != "Tinashe Chikomo" {
		t.Fatalf("stored booking aliased caller data: %+v", got)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	if _, err := Migrate(dsn, "../../migrations"); err != nil {
		t.Fatal(err)
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)
}
