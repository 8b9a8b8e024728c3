package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Vehicle is a registered fleet vehicle. Vehicles are immutable after
// registration.
type Vehicle struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	CapacityKG float64   `json:"capacityKg"`
	Tyres      int       `json:"tyres"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Booking reserves one vehicle for the interval [StartTime, EndTime).
// EndTime is always StartTime plus the estimated ride duration; it is derived
// through NewInterval and never accepted from callers.
type Booking struct {
	ID                         uuid.UUID `json:"id"`
	VehicleID                  uuid.UUID `json:"vehicleId"`
	FromPincode                string    `json:"fromPincode"`
	ToPincode                  string    `json:"toPincode"`
	StartTime                  time.Time `json:"startTime"`
	EndTime                    time.Time `json:"endTime"`
	CustomerID                 string    `json:"customerId"`
	EstimatedRideDurationHours int       `json:"estimatedRideDurationHours"`
	CreatedAt                  time.Time `json:"createdAt"`
}

// Window returns the booking's reservation interval.
func (b Booking) Window() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// BookingsOverlap reports whether two bookings compete for the same vehicle
// at any instant.
func BookingsOverlap(a, b Booking) bool {
	return a.VehicleID == b.VehicleID && a.Window().Overlaps(b.Window())
}

// Scope is a transactional view of the store: the conflict check and the
// insert either both take effect or neither does.
type Scope interface {
	ExistsOverlapping(ctx context.Context, vehicleID uuid.UUID, window Interval) (bool, error)
	InsertBooking(ctx context.Context, booking Booking) (Booking, error)
	Commit() error
	Abort() error
}

// Store is the persistence contract consumed by the reservation engine.
// BeginScope returns ErrScopesUnsupported when the backing store cannot
// provide transactional scopes; callers then degrade to a non-atomic
// check-then-insert against the plain Store methods.
type Store interface {
	CreateVehicle(ctx context.Context, vehicle Vehicle) (Vehicle, error)
	GetVehicleByID(ctx context.Context, id uuid.UUID) (Vehicle, error)
	FindVehiclesByCapacity(ctx context.Context, minCapacityKG float64) ([]Vehicle, error)
	CountVehiclesByCapacity(ctx context.Context, minCapacityKG float64) (int, error)

	ExistsOverlapping(ctx context.Context, vehicleID uuid.UUID, window Interval) (bool, error)
	InsertBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (Booking, error)
	ListBookings(ctx context.Context, limit, offset int) ([]Booking, error)
	CountBookings(ctx context.Context) (int, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error

	BeginScope(ctx context.Context) (Scope, error)
}

// BookingEventType identifies lifecycle events emitted by the service.
type BookingEventType string

const (
	EventBookingCreated    BookingEventType = "BookingCreated"
	EventBookingCancelled  BookingEventType = "BookingCancelled"
	EventVehicleRegistered BookingEventType = "VehicleRegistered"
)

// BookingEvent is published after state changes commit.
type BookingEvent struct {
	BookingID uuid.UUID        `json:"booking_id,omitempty"`
	VehicleID uuid.UUID        `json:"vehicle_id"`
	Type      BookingEventType `json:"type"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// EventPublisher delivers booking events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}

// IdempotencyStore caches responses keyed by client idempotency keys.
type IdempotencyStore interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	PutResponse(ctx context.Context, key string, payload []byte) error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
