package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/fleetlink/internal/booking/domain"
	"github.com/example/fleetlink/internal/booking/repository"
)

func startPostgresStore(t *testing.T, ctx context.Context) (*repository.PostgresStore, *sql.DB) {
	t.Helper()
	pg, err := postgrescontainer.Run(ctx, "postgres:16",
		postgrescontainer.WithDatabase("fleetlink"),
		postgrescontainer.WithUsername("postgres"),
		postgrescontainer.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections")))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pg.Terminate(ctx)) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(ctx))
	return store, db
}

func createTestVehicle(t *testing.T, ctx context.Context, store *repository.PostgresStore) domain.Vehicle {
	t.Helper()
	vehicle, err := store.CreateVehicle(ctx, domain.Vehicle{
		ID:         uuid.New(),
		Name:       "Flatbed Truck",
		CapacityKG: 4000,
		Tyres:      8,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return vehicle
}

// reserve mirrors the engine's scoped reservation flow at the store level.
func reserve(ctx context.Context, store *repository.PostgresStore, vehicleID uuid.UUID, window domain.Interval, customer string) (domain.Booking, error) {
	scope, err := store.BeginScope(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	exists, err := scope.ExistsOverlapping(ctx, vehicleID, window)
	if err != nil {
		_ = scope.Abort()
		return domain.Booking{}, err
	}
	if exists {
		_ = scope.Abort()
		return domain.Booking{}, &domain.ConflictError{VehicleID: vehicleID, Window: window}
	}
	booking := domain.Booking{
		ID:                         uuid.New(),
		VehicleID:                  vehicleID,
		FromPincode:                "110001",
		ToPincode:                  "110005",
		StartTime:                  window.Start,
		EndTime:                    window.End,
		CustomerID:                 customer,
		EstimatedRideDurationHours: window.Hours(),
		CreatedAt:                  time.Now().UTC(),
	}
	created, err := scope.InsertBooking(ctx, booking)
	if err != nil {
		_ = scope.Abort()
		return domain.Booking{}, err
	}
	if err := scope.Commit(); err != nil {
		return domain.Booking{}, err
	}
	return created, nil
}

func TestPostgresStoreVehicleRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	store, _ := startPostgresStore(t, ctx)

	created := createTestVehicle(t, ctx, store)

	fetched, err := store.GetVehicleByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Name, fetched.Name)
	require.Equal(t, created.CapacityKG, fetched.CapacityKG)

	_, err = store.GetVehicleByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrVehicleNotFound)

	matched, err := store.FindVehiclesByCapacity(ctx, 3000)
	require.NoError(t, err)
	require.Len(t, matched, 1)

	matched, err = store.FindVehiclesByCapacity(ctx, 5000)
	require.NoError(t, err)
	require.Empty(t, matched)

	count, err := store.CountVehiclesByCapacity(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPostgresStoreScopedReservation(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	store, _ := startPostgresStore(t, ctx)
	vehicle := createTestVehicle(t, ctx, store)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first, err := reserve(ctx, store, vehicle.ID, domain.NewInterval(start, 4), "customer-1")
	require.NoError(t, err)

	// Overlapping window is rejected with a conflict.
	_, err = reserve(ctx, store, vehicle.ID, domain.NewInterval(start.Add(2*time.Hour), 4), "customer-2")
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, vehicle.ID, conflict.VehicleID)

	// A window starting exactly at the previous end is free.
	_, err = reserve(ctx, store, vehicle.ID, domain.NewInterval(first.EndTime, 2), "customer-3")
	require.NoError(t, err)

	count, err := store.CountBookings(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPostgresStoreConcurrentReservationsAdmitOne(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	store, _ := startPostgresStore(t, ctx)
	vehicle := createTestVehicle(t, ctx, store)
	window := domain.NewInterval(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 4)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reserve(ctx, store, vehicle.ID, window, "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed, conflicted int
	for err := range results {
		switch {
		case err == nil:
			committed++
		default:
			var conflict *domain.ConflictError
			require.True(t, errors.As(err, &conflict), "unexpected error: %v", err)
			conflicted++
		}
	}
	require.Equal(t, 1, committed)
	require.Equal(t, attempts-1, conflicted)

	count, err := store.CountBookings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPostgresStoreExclusionConstraintBackstop(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	store, _ := startPostgresStore(t, ctx)
	vehicle := createTestVehicle(t, ctx, store)
	window := domain.NewInterval(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 4)

	booking := domain.Booking{
		ID:          uuid.New(),
		VehicleID:   vehicle.ID,
		FromPincode: "110001",
		ToPincode:   "110005",
		StartTime:   window.Start,
		EndTime:     window.End,
		CustomerID:  "customer-1",
		CreatedAt:   time.Now().UTC(),
	}
	_, err := store.InsertBooking(ctx, booking)
	require.NoError(t, err)

	// A direct insert that skips the conflict check still cannot break the
	// invariant.
	booking.ID = uuid.New()
	booking.CustomerID = "customer-2"
	_, err = store.InsertBooking(ctx, booking)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestPostgresStoreBookingListingAndDeletion(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	store, _ := startPostgresStore(t, ctx)
	vehicle := createTestVehicle(t, ctx, store)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	var created []domain.Booking
	for i := 0; i < 5; i++ {
		b, err := reserve(ctx, store, vehicle.ID, domain.NewInterval(start.Add(time.Duration(i*3)*time.Hour), 2), "customer-1")
		require.NoError(t, err)
		created = append(created, b)
	}

	page, err := store.ListBookings(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, created[2].ID, page[0].ID)

	require.NoError(t, store.DeleteBooking(ctx, created[0].ID))
	require.ErrorIs(t, store.DeleteBooking(ctx, created[0].ID), domain.ErrBookingNotFound)

	_, err = store.GetBookingByID(ctx, created[0].ID)
	require.ErrorIs(t, err, domain.ErrBookingNotFound)

	count, err := store.CountBookings(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestOutboxQueuePublishAppendsRow(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()
	_, db := startPostgresStore(t, ctx)

	queue := repository.NewOutboxQueue(db, "booking.events")
	require.NoError(t, queue.Publish(ctx, domain.BookingEvent{
		BookingID: uuid.New(),
		VehicleID: uuid.New(),
		Type:      domain.EventBookingCreated,
		CreatedAt: time.Now().UTC(),
	}))

	var topic string
	var published bool
	row := db.QueryRowContext(ctx, `SELECT topic, published FROM outbox ORDER BY id DESC LIMIT 1`)
	require.NoError(t, row.Scan(&topic, &published))
	require.Equal(t, "booking.events", topic)
	require.False(t, published)
}
