package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/fleetlink/internal/booking/domain"
)

// MemoryStore is an in-memory implementation of domain.Store suitable for
// tests and local demos. It does not support transactional scopes, so every
// reservation made against it goes through the engine's non-atomic fallback
// path: two racing check-then-insert sequences can both pass the conflict
// check before either insert lands. That window is inherent to scope-less
// stores and is accepted for this backend.
type MemoryStore struct {
	mu       sync.RWMutex
	vehicles []domain.Vehicle
	bookings []domain.Booking
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateVehicle appends the vehicle, preserving registration order.
func (m *MemoryStore) CreateVehicle(_ context.Context, vehicle domain.Vehicle) (domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles = append(m.vehicles, vehicle)
	return vehicle, nil
}

// GetVehicleByID retrieves a vehicle.
func (m *MemoryStore) GetVehicleByID(_ context.Context, id uuid.UUID) (domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.Vehicle{}, domain.ErrVehicleNotFound
}

// FindVehiclesByCapacity returns vehicles with capacity >= minCapacityKG in
// registration order, keeping pagination stable across calls.
func (m *MemoryStore) FindVehiclesByCapacity(_ context.Context, minCapacityKG float64) ([]domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []domain.Vehicle
	for _, v := range m.vehicles {
		if v.CapacityKG >= minCapacityKG {
			matched = append(matched, v)
		}
	}
	return matched, nil
}

// CountVehiclesByCapacity counts vehicles meeting the capacity floor.
func (m *MemoryStore) CountVehiclesByCapacity(ctx context.Context, minCapacityKG float64) (int, error) {
	vehicles, err := m.FindVehiclesByCapacity(ctx, minCapacityKG)
	if err != nil {
		return 0, err
	}
	return len(vehicles), nil
}

// ExistsOverlapping reports whether any booking for the vehicle overlaps the
// window.
func (m *MemoryStore) ExistsOverlapping(_ context.Context, vehicleID uuid.UUID, window domain.Interval) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.VehicleID == vehicleID && b.Window().Overlaps(window) {
			return true, nil
		}
	}
	return false, nil
}

// InsertBooking stores the booking.
func (m *MemoryStore) InsertBooking(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, booking)
	return booking, nil
}

// GetBookingByID retrieves a booking.
func (m *MemoryStore) GetBookingByID(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrBookingNotFound
}

// ListBookings returns bookings in creation order.
func (m *MemoryStore) ListBookings(_ context.Context, limit, offset int) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.bookings) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.bookings) {
		end = len(m.bookings)
	}
	return append([]domain.Booking(nil), m.bookings[offset:end]...), nil
}

// CountBookings returns the number of stored bookings.
func (m *MemoryStore) CountBookings(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bookings), nil
}

// DeleteBooking removes a booking if present.
func (m *MemoryStore) DeleteBooking(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bookings {
		if b.ID == id {
			m.bookings = append(m.bookings[:i], m.bookings[i+1:]...)
			return nil
		}
	}
	return domain.ErrBookingNotFound
}

// BeginScope always reports the capability failure: the memory store has no
// transaction mechanism.
func (m *MemoryStore) BeginScope(context.Context) (domain.Scope, error) {
	return nil, domain.ErrScopesUnsupported
}
