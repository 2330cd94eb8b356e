package seats

import (
	"fmt"
	"time"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

// Engine checks seat requests and reports every refusal as a typed fault.
type Engine struct{}

// Check returns the seats available over dates and an error when requested
// cannot be honoured.
func (Engine) Check(capacity int, dates []time.Time, bookings []models.Booking, requested int) (int, error) {
	if capacity < 1 {
		return 0, fault.InputError{Field: "capacity", Reason: "must be at least 1"}
	}
	if requested < 1 {
		return 0, fault.InputError{Field: "seats", Reason: "must be at least 1"}
	}

	available := AvailableSeats(capacity, dates, bookings)
	if requested <= available {
		return available, nil
	}

	measurement := fmt.Sprintf("requested %d, available %d", requested, available)
	if day, committed, ok := BindingDay(dates, bookings); ok {
		measurement += fmt.Sprintf(", %d committed on %s", committed, models.FormatDate(day))
	}
	return available, fault.PolicyError{
		Op:          "seats",
		Reason:      fmt.Sprintf("%d seat(s) short", requested-available),
		Measurement: measurement,
	}
}

// ForBooking expands the booking's own range and weekdays and checks its seat
// count, ignoring the booking itself when it is already present in bookings.
func (e Engine) ForBooking(capacity int, b models.Booking, bookings []models.Booking) (int, error) {
	dates, err := CandidateDates(b.StartDate, b.EndDate, b.DaysOfWeek)
	if err != nil {
		return 0, err
	}
	others := make([]models.Booking, 0, len(bookings))
	for _, o := range bookings {
		if b.ID != 0 && o.ID == b.ID {
			continue
		}
		others = append(others, o)
	}
	return e.Check(capacity, dates, others, b.SeatsBooked)
}
