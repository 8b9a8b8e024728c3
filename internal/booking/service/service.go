package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/fleetlink/internal/booking/domain"
	"github.com/example/fleetlink/pkg/pagination"
)

// Service coordinates reservation operations between handlers and the store.
// It holds no long-lived state of its own; all coordination between
// concurrent callers is delegated to the store's transactional scopes.
type Service struct {
	store      domain.Store
	events     domain.EventPublisher
	idempotent domain.IdempotencyStore
	clock      domain.Clock
	tracer     trace.Tracer
}

// New constructs a Service with the required collaborators.
func New(store domain.Store, events domain.EventPublisher, idem domain.IdempotencyStore, clock domain.Clock) *Service {
	return &Service{
		store:      store,
		events:     events,
		idempotent: idem,
		clock:      clock,
		tracer:     otel.Tracer("booking.service"),
	}
}

// ReserveRequest contains the payload for reserving a vehicle. StartTime is
// an RFC 3339 instant; the reservation end is always derived from the
// estimated duration, never supplied.
type ReserveRequest struct {
	VehicleID   uuid.UUID
	FromPincode string
	ToPincode   string
	StartTime   string
	CustomerID  string
}

// reserveState drives the explicit two-path reservation machine:
// AttemptAtomic -> committed | conflict | fallbackRequired -> AttemptNonAtomic.
type reserveState int

const (
	stateCommitted reserveState = iota
	stateConflict
	stateFallbackRequired
	stateFailed
)

// Reserve books the vehicle for the derived window or reports why it cannot.
// Returned errors are *domain.ValidationError, domain.ErrVehicleNotFound,
// *domain.ConflictError, or an internal failure. A conflict is terminal for
// the call; it is never retried with a different window.
func (s *Service) Reserve(ctx context.Context, idemKey string, req ReserveRequest) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.reserve")
	defer span.End()

	if idemKey != "" && s.idempotent != nil {
		if cached, ok, err := s.idempotent.GetResponse(ctx, idemKey); err == nil && ok {
			return decodeBooking(cached)
		}
	}

	start, err := validateReserveRequest(req)
	if err != nil {
		return domain.Booking{}, err
	}

	vehicle, err := s.store.GetVehicleByID(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrVehicleNotFound) {
			return domain.Booking{}, domain.ErrVehicleNotFound
		}
		return domain.Booking{}, fmt.Errorf("load vehicle: %w", err)
	}

	hours := domain.EstimateHours(req.FromPincode, req.ToPincode)
	window := domain.NewInterval(start, hours)
	booking := domain.Booking{
		ID:                         uuid.New(),
		VehicleID:                  vehicle.ID,
		FromPincode:                req.FromPincode,
		ToPincode:                  req.ToPincode,
		StartTime:                  window.Start,
		EndTime:                    window.End,
		CustomerID:                 req.CustomerID,
		EstimatedRideDurationHours: hours,
		CreatedAt:                  s.clock.Now(),
	}

	created, state, err := s.attemptAtomic(ctx, booking, window)
	path := "atomic"
	if state == stateFallbackRequired {
		reservationFallbackTotal.Inc()
		path = "fallback"
		created, state, err = s.attemptFallback(ctx, booking, window)
	}

	switch state {
	case stateCommitted:
		reservationsTotal.WithLabelValues(path, "committed").Inc()
	case stateConflict:
		reservationsTotal.WithLabelValues(path, "conflict").Inc()
		return domain.Booking{}, err
	default:
		reservationsTotal.WithLabelValues(path, "error").Inc()
		return domain.Booking{}, err
	}

	s.publish(ctx, domain.BookingEvent{
		BookingID: created.ID,
		VehicleID: created.VehicleID,
		Type:      domain.EventBookingCreated,
		Payload:   map[string]any{"customer_id": created.CustomerID, "start_time": created.StartTime, "end_time": created.EndTime},
		CreatedAt: s.clock.Now(),
	})

	if idemKey != "" && s.idempotent != nil {
		if payload, err := json.Marshal(created); err == nil {
			_ = s.idempotent.PutResponse(ctx, idemKey, payload)
		}
	}

	return created, nil
}

// attemptAtomic runs the conflict check and insert inside one store scope.
// A capability failure from BeginScope or from any operation inside the scope
// requests the fallback path; every other exit aborts the scope first.
func (s *Service) attemptAtomic(ctx context.Context, booking domain.Booking, window domain.Interval) (domain.Booking, reserveState, error) {
	scope, err := s.store.BeginScope(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrScopesUnsupported) {
			return domain.Booking{}, stateFallbackRequired, nil
		}
		return domain.Booking{}, stateFailed, fmt.Errorf("begin scope: %w", err)
	}

	exists, err := scope.ExistsOverlapping(ctx, booking.VehicleID, window)
	if err != nil {
		_ = scope.Abort()
		if errors.Is(err, domain.ErrScopesUnsupported) {
			return domain.Booking{}, stateFallbackRequired, nil
		}
		return domain.Booking{}, stateFailed, fmt.Errorf("conflict check: %w", err)
	}
	if exists {
		_ = scope.Abort()
		return domain.Booking{}, stateConflict, &domain.ConflictError{VehicleID: booking.VehicleID, Window: window}
	}

	created, err := scope.InsertBooking(ctx, booking)
	if err != nil {
		_ = scope.Abort()
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return domain.Booking{}, stateConflict, conflict
		}
		if errors.Is(err, domain.ErrScopesUnsupported) {
			return domain.Booking{}, stateFallbackRequired, nil
		}
		return domain.Booking{}, stateFailed, fmt.Errorf("insert booking: %w", err)
	}

	if err := scope.Commit(); err != nil {
		return domain.Booking{}, stateFailed, fmt.Errorf("commit scope: %w", err)
	}
	return created, stateCommitted, nil
}

// attemptFallback repeats the check-then-insert as two independent store
// operations. Without a scope, two concurrent attempts can both pass the
// check before either insert lands; the check runs immediately before the
// insert to keep that window as small as the store allows, but it cannot be
// closed without transactional support.
func (s *Service) attemptFallback(ctx context.Context, booking domain.Booking, window domain.Interval) (domain.Booking, reserveState, error) {
	exists, err := s.store.ExistsOverlapping(ctx, booking.VehicleID, window)
	if err != nil {
		return domain.Booking{}, stateFailed, fmt.Errorf("conflict check: %w", err)
	}
	if exists {
		return domain.Booking{}, stateConflict, &domain.ConflictError{VehicleID: booking.VehicleID, Window: window}
	}

	created, err := s.store.InsertBooking(ctx, booking)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return domain.Booking{}, stateConflict, conflict
		}
		return domain.Booking{}, stateFailed, fmt.Errorf("insert booking: %w", err)
	}
	return created, stateCommitted, nil
}

// AvailabilityQuery filters vehicles by capacity and freedom over the derived
// window.
type AvailabilityQuery struct {
	CapacityRequired float64
	FromPincode      string
	ToPincode        string
	StartTime        string
	Page             int
	PageSize         int
}

// AvailableVehicle pairs a free vehicle with the query's estimated duration.
type AvailableVehicle struct {
	domain.Vehicle
	EstimatedRideDurationHours int `json:"estimatedRideDurationHours"`
}

// AvailabilityPage is one page of available vehicles plus paging metadata.
type AvailabilityPage struct {
	Vehicles []AvailableVehicle `json:"vehicles"`
	pagination.Page
}

// FindAvailable returns capacity-qualified vehicles with no booking
// overlapping the derived window. The duration is computed once per query,
// so every returned vehicle reports the same estimate. Read-only; no scope
// is taken.
func (s *Service) FindAvailable(ctx context.Context, q AvailabilityQuery) (AvailabilityPage, error) {
	ctx, span := s.tracer.Start(ctx, "booking.find_available")
	defer span.End()
	timer := time.Now()
	defer func() { availabilityDuration.Observe(time.Since(timer).Seconds()) }()

	start, err := validateAvailabilityQuery(q)
	if err != nil {
		return AvailabilityPage{}, err
	}

	hours := domain.EstimateHours(q.FromPincode, q.ToPincode)
	window := domain.NewInterval(start, hours)

	vehicles, err := s.store.FindVehiclesByCapacity(ctx, q.CapacityRequired)
	if err != nil {
		return AvailabilityPage{}, fmt.Errorf("find vehicles: %w", err)
	}

	available := make([]AvailableVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		busy, err := s.store.ExistsOverlapping(ctx, v.ID, window)
		if err != nil {
			return AvailabilityPage{}, fmt.Errorf("check overlap for vehicle %s: %w", v.ID, err)
		}
		if !busy {
			available = append(available, AvailableVehicle{Vehicle: v, EstimatedRideDurationHours: hours})
		}
	}

	page := pagination.Paginate(len(available), q.Page, q.PageSize)
	lo, hi := page.Bounds(len(available))
	return AvailabilityPage{Vehicles: available[lo:hi], Page: page}, nil
}

// RegisterVehicleRequest contains the payload for registering a vehicle.
type RegisterVehicleRequest struct {
	Name       string
	CapacityKG float64
	Tyres      int
}

// RegisterVehicle adds a vehicle to the fleet.
func (s *Service) RegisterVehicle(ctx context.Context, req RegisterVehicleRequest) (domain.Vehicle, error) {
	if req.Name == "" {
		return domain.Vehicle{}, domain.NewValidationError("name", "required")
	}
	if req.CapacityKG <= 0 {
		return domain.Vehicle{}, domain.NewValidationError("capacityKg", "must be positive")
	}
	if req.Tyres <= 0 {
		return domain.Vehicle{}, domain.NewValidationError("tyres", "must be positive")
	}

	vehicle, err := s.store.CreateVehicle(ctx, domain.Vehicle{
		ID:         uuid.New(),
		Name:       req.Name,
		CapacityKG: req.CapacityKG,
		Tyres:      req.Tyres,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("create vehicle: %w", err)
	}

	s.publish(ctx, domain.BookingEvent{
		VehicleID: vehicle.ID,
		Type:      domain.EventVehicleRegistered,
		Payload:   map[string]any{"name": vehicle.Name, "capacity_kg": vehicle.CapacityKG},
		CreatedAt: s.clock.Now(),
	})
	return vehicle, nil
}

// VehiclePage is one page of registered vehicles plus paging metadata.
type VehiclePage struct {
	Vehicles []domain.Vehicle `json:"vehicles"`
	pagination.Page
}

// ListVehicles returns registered vehicles in registration order.
func (s *Service) ListVehicles(ctx context.Context, pageNum, pageSize int) (VehiclePage, error) {
	total, err := s.store.CountVehiclesByCapacity(ctx, 0)
	if err != nil {
		return VehiclePage{}, fmt.Errorf("count vehicles: %w", err)
	}
	vehicles, err := s.store.FindVehiclesByCapacity(ctx, 0)
	if err != nil {
		return VehiclePage{}, fmt.Errorf("find vehicles: %w", err)
	}
	page := pagination.Paginate(total, pageNum, pageSize)
	lo, hi := page.Bounds(len(vehicles))
	return VehiclePage{Vehicles: vehicles[lo:hi], Page: page}, nil
}

// BookingPage is one page of bookings plus paging metadata.
type BookingPage struct {
	Bookings []domain.Booking `json:"bookings"`
	pagination.Page
}

// ListBookings returns bookings in creation order.
func (s *Service) ListBookings(ctx context.Context, pageNum, pageSize int) (BookingPage, error) {
	total, err := s.store.CountBookings(ctx)
	if err != nil {
		return BookingPage{}, fmt.Errorf("count bookings: %w", err)
	}
	page := pagination.Paginate(total, pageNum, pageSize)
	bookings, err := s.store.ListBookings(ctx, page.Limit, page.Offset)
	if err != nil {
		return BookingPage{}, fmt.Errorf("list bookings: %w", err)
	}
	return BookingPage{Bookings: bookings, Page: page}, nil
}

// CancelBooking removes a booking after checking it exists.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) error {
	booking, err := s.store.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.BookingEvent{
		BookingID: booking.ID,
		VehicleID: booking.VehicleID,
		Type:      domain.EventBookingCancelled,
		CreatedAt: s.clock.Now(),
	})
	return nil
}

func (s *Service) publish(ctx context.Context, event domain.BookingEvent) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event)
}

func validateReserveRequest(req ReserveRequest) (time.Time, error) {
	if req.VehicleID == uuid.Nil {
		return time.Time{}, domain.NewValidationError("vehicleId", "required")
	}
	if req.CustomerID == "" {
		return time.Time{}, domain.NewValidationError("customerId", "required")
	}
	if !domain.ValidPincode(req.FromPincode) {
		return time.Time{}, domain.NewValidationError("fromPincode", "must be a 5-6 digit code")
	}
	if !domain.ValidPincode(req.ToPincode) {
		return time.Time{}, domain.NewValidationError("toPincode", "must be a 5-6 digit code")
	}
	return parseStartTime(req.StartTime)
}

func validateAvailabilityQuery(q AvailabilityQuery) (time.Time, error) {
	if q.CapacityRequired <= 0 {
		return time.Time{}, domain.NewValidationError("capacityRequired", "must be positive")
	}
	if !domain.ValidPincode(q.FromPincode) {
		return time.Time{}, domain.NewValidationError("fromPincode", "must be a 5-6 digit code")
	}
	if !domain.ValidPincode(q.ToPincode) {
		return time.Time{}, domain.NewValidationError("toPincode", "must be a 5-6 digit code")
	}
	return parseStartTime(q.StartTime)
}

func parseStartTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.NewValidationError("startTime", "required")
	}
	start, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("startTime", "must be an RFC 3339 instant")
	}
	return start.UTC(), nil
}

func decodeBooking(payload []byte) (domain.Booking, error) {
	var booking domain.Booking
	if err := json.Unmarshal(payload, &booking); err != nil {
		return domain.Booking{}, fmt.Errorf("decode cached booking: %w", err)
	}
	return booking, nil
}
