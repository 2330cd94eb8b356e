package models

import (
	"time"

	"minibus.schoolride.org/internal/fault"
)

type Booking struct {
	ID                int
	UserID            int
	RouteID           int
	PickupLocation    string
	DropoffLocation   string
	PickupLocationID  int
	DropoffLocationID int
	StartDate         time.Time
	EndDate           time.Time
	DaysOfWeek        Weekdays
	ServiceType       ServiceType
	SeatsBooked       int
	Status            BookingStatus
}

// Covers reports whether date lies within the inclusive booking range.
func (b Booking) Covers(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(b.StartDate)) && !d.After(DateOf(b.EndDate))
}

// Active reports whether the booking still holds seats.
func (b Booking) Active() bool {
	return b.Status == BookingActive
}

// Validate checks the booking against the vehicle capacity.
func (b Booking) Validate(capacity int) error {
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return fault.InputError{Field: "dates", Reason: "start and end dates are required"}
	}
	if DateOf(b.EndDate).Before(DateOf(b.StartDate)) {
		return fault.InputError{Field: "end_date", Reason: "must not be before start_date"}
	}
	if !b.ServiceType.Valid() {
		return fault.InputError{Field: "service_type", Reason: "must be morning, evening or both"}
	}
	if b.SeatsBooked < 1 {
		return fault.InputError{Field: "seats_booked", Reason: "must be at least 1"}
	}
	if capacity > 0 && b.SeatsBooked > capacity {
		return fault.InputError{Field: "seats_booked", Reason: "exceeds vehicle capacity"}
	}
	return nil
}
