package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/example/fleetlink/internal/booking/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestGetVehicleByIDMapsNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, capacity_kg, tyres, created_at FROM vehicles WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity_kg", "tyres", "created_at"}))

	_, err := store.GetVehicleByID(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrVehicleNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBookingMapsZeroRows(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM bookings WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, store.DeleteBooking(context.Background(), id), domain.ErrBookingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBookingMapsExclusionViolation(t *testing.T) {
	store, mock := newMockStore(t)
	booking := domain.Booking{
		ID:        uuid.New(),
		VehicleID: uuid.New(),
		StartTime: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery(`INSERT INTO bookings`).
		WillReturnError(&pgconn.PgError{Code: pgExclusionViolation, ConstraintName: "bookings_no_overlap"})

	_, err := store.InsertBooking(context.Background(), booking)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, booking.VehicleID, conflict.VehicleID)
	require.Equal(t, booking.Window(), conflict.Window)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeAbortRollsBackTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	vehicleID := uuid.New()
	window := domain.NewInterval(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 4)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`)).
		WithArgs(vehicleID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	scope, err := store.BeginScope(context.Background())
	require.NoError(t, err)

	exists, err := scope.ExistsOverlapping(context.Background(), vehicleID, window)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, scope.Abort())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeCommitsAfterInsert(t *testing.T) {
	store, mock := newMockStore(t)
	vehicleID := uuid.New()
	window := domain.NewInterval(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 4)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`)).
		WithArgs(vehicleID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	scope, err := store.BeginScope(context.Background())
	require.NoError(t, err)

	exists, err := scope.ExistsOverlapping(context.Background(), vehicleID, window)
	require.NoError(t, err)
	require.False(t, exists)

	created, err := scope.InsertBooking(context.Background(), domain.Booking{
		ID:        uuid.New(),
		VehicleID: vehicleID,
		StartTime: window.Start,
		EndTime:   window.End,
	})
	require.NoError(t, err)
	require.Equal(t, now, created.CreatedAt)

	require.NoError(t, scope.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
