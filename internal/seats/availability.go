// Package seats computes how many seats a vehicle can still offer over a set
// of service dates.
package seats

import (
	"fmt"
	"time"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

// maxCandidateDays bounds CandidateDates so a typo in a year cannot expand
// into an unbounded slice.
const maxCandidateDays = 366 * 2

// committedOn sums the seats held by active bookings covering date.
func committedOn(date time.Time, bookings []models.Booking) int {
	sum := 0
	for _, b := range bookings {
		if b.Active() && b.Covers(date) {
			sum += b.SeatsBooked
		}
	}
	return sum
}

// BindingDay returns the date with the highest committed seat count. Ties
// keep the earliest date in input order. ok is false for an empty date set.
func BindingDay(dates []time.Time, bookings []models.Booking) (day time.Time, committed int, ok bool) {
	for _, d := range dates {
		c := committedOn(d, bookings)
		if !ok || c > committed {
			day, committed, ok = models.DateOf(d), c, true
		}
	}
	return day, committed, ok
}

// AvailableSeats is capacity minus the worst single-day commitment over
// dates, never below zero. With no dates the whole capacity is available.
func AvailableSeats(capacity int, dates []time.Time, bookings []models.Booking) int {
	_, committed, _ := BindingDay(dates, bookings)
	if available := capacity - committed; available > 0 {
		return available
	}
	return 0
}

// Clamp lowers a previously chosen seat count when availability drops.
// adjusted reports whether the value changed.
func Clamp(requested, available int) (seats int, adjusted bool) {
	if available < 0 {
		available = 0
	}
	if requested > available {
		return available, true
	}
	return requested, false
}

// CandidateDates expands an inclusive range into the dates a booking would
// occupy. An empty weekday set selects every day.
func CandidateDates(start, end time.Time, weekdays models.Weekdays) ([]time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fault.InputError{Field: "dates", Reason: "start and end dates are required"}
	}
	from, to := models.DateOf(start), models.DateOf(end)
	if to.Before(from) {
		return nil, fault.InputError{Field: "end_date", Reason: "must not be before start_date"}
	}
	if span := int(to.Sub(from).Hours()/24) + 1; span > maxCandidateDays {
		return nil, fault.InputError{Field: "end_date", Reason: fmt.Sprintf("range of %d days is too long", span)}
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if weekdays.Contains(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}
