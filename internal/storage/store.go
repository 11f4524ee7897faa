package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Mutombe/cargo-space/internal/models"
)

var ErrNotFound = errors.New("not found")

// BookingStore persists posted cargo and bookings. SaveBooking is an upsert
// that never moves a booking back to an earlier status.
type BookingStore interface {
	SaveCargo(ctx context.Context, post models.CargoPost) error
	GetCargo(ctx context.Context, id string) (models.CargoPost, error)
	SaveBooking(ctx context.Context, b models.Booking) error
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	ListBookings(ctx context.Context, ownerID string) ([]models.Booking, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	cargo    map[string]models.CargoPost
	bookings map[string]models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cargo:    make(map[string]models.CargoPost),
		bookings: make(map[string]models.Booking),
	}
}

func (m *MemoryStore) SaveCargo(_ context.Context, post models.CargoPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cargo[post.ID] = post.Clone()
	return nil
}

func (m *MemoryStore) GetCargo(_ context.Context, id string) (models.CargoPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.cargo[id]
	if !ok {
		return models.CargoPost{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) SaveBooking(_ context.Context, b models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.bookings[b.ID]; ok && cur.Status.Rank() > b.Status.Rank() {
		return nil
	}
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return models.Booking{}, ErrNotFound
	}
	return copyBooking(b), nil
}

// ListBookings returns ownerID's bookings, most recently updated first.
func (m *MemoryStore) ListBookings(_ context.Context, ownerID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if b.CargoPost.OwnerID == ownerID {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func copyBooking(b models.Booking) models.Booking {
	b.CargoPost = b.CargoPost.Clone()
	if b.SelectedDriver != nil {
		d := *b.SelectedDriver
		d.Offers = append([]models.DriverOffer(nil), d.Offers...)
		b.SelectedDriver = &d
	}
	return b
}
