package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/fleetlink/internal/booking/domain"
)

// pgExclusionViolation is raised when an insert breaks the bookings_no_overlap
// exclusion constraint.
const pgExclusionViolation = "23P01"

// PostgresStore implements domain.Store on PostgreSQL. Scopes map to SQL
// transactions; inside a scope the conflict check takes a per-vehicle
// advisory lock, so of two racing reservations one blocks until the other
// commits and then sees its row. The bookings_no_overlap exclusion constraint
// enforces the non-overlap invariant at the schema level as a backstop.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables and constraints the store relies on.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS btree_gist`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			capacity_kg DOUBLE PRECISION NOT NULL CHECK (capacity_kg > 0),
			tyres INT NOT NULL CHECK (tyres > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			vehicle_id UUID NOT NULL REFERENCES vehicles(id),
			from_pincode TEXT NOT NULL,
			to_pincode TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			customer_id TEXT NOT NULL,
			estimated_ride_duration_hours INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (end_time > start_time),
			CONSTRAINT bookings_no_overlap EXCLUDE USING gist (vehicle_id WITH =, tstzrange(start_time, end_time) WITH &&)
		)`,
		`CREATE INDEX IF NOT EXISTS bookings_vehicle_window_idx ON bookings (vehicle_id, start_time, end_time)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateVehicle persists a new vehicle.
func (s *PostgresStore) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO vehicles (id, name, capacity_kg, tyres, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		vehicle.ID, vehicle.Name, vehicle.CapacityKG, vehicle.Tyres, vehicle.CreatedAt)
	if err := row.Scan(&vehicle.CreatedAt); err != nil {
		return domain.Vehicle{}, fmt.Errorf("insert vehicle: %w", err)
	}
	return vehicle, nil
}

// GetVehicleByID retrieves a vehicle.
func (s *PostgresStore) GetVehicleByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error) {
	var v domain.Vehicle
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, capacity_kg, tyres, created_at FROM vehicles WHERE id = $1`, id)
	if err := row.Scan(&v.ID, &v.Name, &v.CapacityKG, &v.Tyres, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, domain.ErrVehicleNotFound
		}
		return domain.Vehicle{}, fmt.Errorf("select vehicle: %w", err)
	}
	return v, nil
}

// FindVehiclesByCapacity returns vehicles with capacity >= minCapacityKG,
// ordered by registration so pagination stays stable across calls.
func (s *PostgresStore) FindVehiclesByCapacity(ctx context.Context, minCapacityKG float64) ([]domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, capacity_kg, tyres, created_at FROM vehicles WHERE capacity_kg >= $1 ORDER BY created_at, id`,
		minCapacityKG)
	if err != nil {
		return nil, fmt.Errorf("select vehicles: %w", err)
	}
	defer rows.Close()
	var vehicles []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.CapacityKG, &v.Tyres, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}
	return vehicles, nil
}

// CountVehiclesByCapacity counts vehicles meeting the capacity floor.
func (s *PostgresStore) CountVehiclesByCapacity(ctx context.Context, minCapacityKG float64) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles WHERE capacity_kg >= $1`, minCapacityKG)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count vehicles: %w", err)
	}
	return count, nil
}

// ExistsOverlapping reports whether any booking for the vehicle overlaps the
// window. Used lock-free by the availability query; the transactional variant
// lives on pgScope.
func (s *PostgresStore) ExistsOverlapping(ctx context.Context, vehicleID uuid.UUID, window domain.Interval) (bool, error) {
	return existsOverlapping(ctx, s.db, vehicleID, window)
}

// InsertBooking persists a booking outside of any scope (the fallback path).
func (s *PostgresStore) InsertBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	return insertBooking(ctx, s.db, booking)
}

// GetBookingByID retrieves a booking.
func (s *PostgresStore) GetBookingByID(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vehicle_id, from_pincode, to_pincode, start_time, end_time, customer_id, estimated_ride_duration_hours, created_at
		 FROM bookings WHERE id = $1`, id)
	var b domain.Booking
	if err := scanBooking(row, &b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, fmt.Errorf("select booking: %w", err)
	}
	return b, nil
}

// ListBookings returns bookings in creation order.
func (s *PostgresStore) ListBookings(ctx context.Context, limit, offset int) ([]domain.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vehicle_id, from_pincode, to_pincode, start_time, end_time, customer_id, estimated_ride_duration_hours, created_at
		 FROM bookings ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()
	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

// CountBookings returns the total number of bookings.
func (s *PostgresStore) CountBookings(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return count, nil
}

// DeleteBooking removes a booking.
func (s *PostgresStore) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if affected == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// BeginScope opens a transaction. Read committed suffices because the
// advisory lock in pgScope.ExistsOverlapping serialises scopes per vehicle.
func (s *PostgresStore) BeginScope(ctx context.Context) (domain.Scope, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin scope: %w", err)
	}
	return &pgScope{tx: tx}, nil
}

type pgScope struct {
	tx *sql.Tx
}

// ExistsOverlapping takes the vehicle's advisory lock for the duration of the
// transaction, then checks for overlap. A concurrent scope for the same
// vehicle blocks here until this transaction commits or aborts, so its check
// observes any booking committed by the winner.
func (s *pgScope) ExistsOverlapping(ctx context.Context, vehicleID uuid.UUID, window domain.Interval) (bool, error) {
	if _, err := s.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, vehicleID); err != nil {
		return false, fmt.Errorf("vehicle lock: %w", err)
	}
	return existsOverlapping(ctx, s.tx, vehicleID, window)
}

func (s *pgScope) InsertBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	return insertBooking(ctx, s.tx, booking)
}

func (s *pgScope) Commit() error { return s.tx.Commit() }

func (s *pgScope) Abort() error { return s.tx.Rollback() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func existsOverlapping(ctx context.Context, q querier, vehicleID uuid.UUID, window domain.Interval) (bool, error) {
	var exists bool
	row := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookings WHERE vehicle_id = $1 AND start_time < $3 AND end_time > $2)`,
		vehicleID, window.Start, window.End)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return exists, nil
}

func insertBooking(ctx context.Context, q querier, booking domain.Booking) (domain.Booking, error) {
	row := q.QueryRowContext(ctx,
		`INSERT INTO bookings (id, vehicle_id, from_pincode, to_pincode, start_time, end_time, customer_id, estimated_ride_duration_hours, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`,
		booking.ID, booking.VehicleID, booking.FromPincode, booking.ToPincode,
		booking.StartTime, booking.EndTime, booking.CustomerID, booking.EstimatedRideDurationHours, booking.CreatedAt)
	if err := row.Scan(&booking.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return domain.Booking{}, &domain.ConflictError{VehicleID: booking.VehicleID, Window: booking.Window()}
		}
		return domain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return booking, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner, b *domain.Booking) error {
	return row.Scan(&b.ID, &b.VehicleID, &b.FromPincode, &b.ToPincode,
		&b.StartTime, &b.EndTime, &b.CustomerID, &b.EstimatedRideDurationHours, &b.CreatedAt)
}
