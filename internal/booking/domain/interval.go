package domain

import "time"

// Interval is a half-open time range [Start, End) occupied by a booking.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval derives the reservation window from a start instant and an
// estimated duration. This is the only constructor for End, so a booking's
// length can never be supplied directly by a caller.
func NewInterval(start time.Time, hours int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(hours) * time.Hour)}
}

// Hours returns the interval length in whole hours.
func (iv Interval) Hours() int {
	return int(iv.End.Sub(iv.Start) / time.Hour)
}

// Overlaps reports whether two intervals share at least one instant. The
// test is half-open: an interval ending exactly when another starts does not
// overlap, so back-to-back bookings are legal.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}
