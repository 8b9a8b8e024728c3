package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleetlink/internal/booking/domain"
)

// seedDemoData loads a small demo fleet plus a few bookings on upcoming days.
// It is a no-op when vehicles already exist so restarts do not duplicate data.
func seedDemoData(ctx context.Context, store domain.Store, clock domain.Clock) error {
	existing, err := store.CountVehiclesByCapacity(ctx, 0)
	if err != nil {
		return fmt.Errorf("count vehicles: %w", err)
	}
	if existing > 0 {
		return nil
	}

	now := clock.Now()

	demoVehicles := []domain.Vehicle{
		{Name: "Small Truck", CapacityKG: 1000, Tyres: 4},
		{Name: "Medium Cargo Van", CapacityKG: 2500, Tyres: 6},
		{Name: "Large Delivery Truck", CapacityKG: 5000, Tyres: 8},
		{Name: "Pickup Truck", CapacityKG: 800, Tyres: 4},
		{Name: "Box Truck", CapacityKG: 3500, Tyres: 6},
		{Name: "Refrigerated Van", CapacityKG: 1500, Tyres: 4},
		{Name: "Flatbed Truck", CapacityKG: 4000, Tyres: 8},
		{Name: "Heavy Hauler", CapacityKG: 10000, Tyres: 10},
		{Name: "City Courier", CapacityKG: 500, Tyres: 4},
		{Name: "Long-Distance Hauler", CapacityKG: 8000, Tyres: 12},
	}

	created := make([]domain.Vehicle, 0, len(demoVehicles))
	for _, v := range demoVehicles {
		v.ID = uuid.New()
		v.CreatedAt = now
		stored, err := store.CreateVehicle(ctx, v)
		if err != nil {
			return fmt.Errorf("seed vehicle %q: %w", v.Name, err)
		}
		created = append(created, stored)
	}

	today := now.Truncate(24 * time.Hour)
	demoBookings := []struct {
		vehicle     domain.Vehicle
		fromPincode string
		toPincode   string
		customerID  string
		start       time.Time
	}{
		{created[0], "110001", "110005", "customer-1", today.Add(10 * time.Hour)},
		{created[1], "400001", "400005", "customer-2", today.Add(14 * time.Hour)},
		{created[2], "500001", "500025", "customer-3", today.Add(24*time.Hour + 9*time.Hour)},
		{created[3], "600001", "600015", "customer-4", today.Add(24*time.Hour + 13*time.Hour)},
		{created[4], "700001", "700035", "customer-5", today.Add(48*time.Hour + 11*time.Hour)},
	}

	for _, b := range demoBookings {
		hours := domain.EstimateHours(b.fromPincode, b.toPincode)
		window := domain.NewInterval(b.start, hours)
		booking := domain.Booking{
			ID:                         uuid.New(),
			VehicleID:                  b.vehicle.ID,
			FromPincode:                b.fromPincode,
			ToPincode:                  b.toPincode,
			StartTime:                  window.Start,
			EndTime:                    window.End,
			CustomerID:                 b.customerID,
			EstimatedRideDurationHours: hours,
			CreatedAt:                  now,
		}
		if _, err := store.InsertBooking(ctx, booking); err != nil {
			return fmt.Errorf("seed booking for %q: %w", b.vehicle.Name, err)
		}
	}

	return nil
}
