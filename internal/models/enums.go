package models

import "strings"

// ServiceType is the set of daily legs a booking covers.
type ServiceType string

const (
	ServiceMorning ServiceType = "morning"
	ServiceEvening ServiceType = "evening"
	ServiceBoth    ServiceType = "both"
)

func (s ServiceType) Valid() bool {
	return s == ServiceMorning || s == ServiceEvening || s == ServiceBoth
}

// Covers reports whether a booking of this type runs the given leg.
func (s ServiceType) Covers(leg ServiceTime) bool {
	switch s {
	case ServiceBoth:
		return true
	case ServiceMorning:
		return leg == ServiceTimeMorning
	case ServiceEvening:
		return leg == ServiceTimeEvening
	}
	return false
}

// ServiceTime is the leg a single trip runs.
type ServiceTime string

const (
	ServiceTimeMorning ServiceTime = "morning"
	ServiceTimeEvening ServiceTime = "evening"
)

// BookingStatus is one-directional: active may become cancelled or completed.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// CanTransitionTo reports whether s may move to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return s == BookingActive && (next == BookingCancelled || next == BookingCompleted)
}

// TripStatus is the lifecycle state of one trip.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripPickedUp  TripStatus = "picked_up"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// PassengerStatus is the per-passenger boarding state within a trip.
type PassengerStatus string

const (
	PassengerPending    PassengerStatus = "pending"
	PassengerPickedUp   PassengerStatus = "picked-up"
	PassengerDroppedOff PassengerStatus = "dropped-off"
	PassengerAbsent     PassengerStatus = "absent"
)

// Terminal reports whether the passenger can no longer change status.
func (s PassengerStatus) Terminal() bool {
	return s == PassengerDroppedOff || s == PassengerAbsent
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeTripStatus maps the spellings the backend has used over time.
// Unknown values are treated as scheduled.
func NormalizeTripStatus(raw string) TripStatus {
	switch normalize(raw) {
	case "picked_up", "picked-up", "pickedup":
		return TripPickedUp
	case "completed", "complete":
		return TripCompleted
	case "cancelled", "canceled":
		return TripCancelled
	}
	return TripScheduled
}

// NormalizeServiceTime defaults to morning.
func NormalizeServiceTime(raw string) ServiceTime {
	if normalize(raw) == "evening" {
		return ServiceTimeEvening
	}
	return ServiceTimeMorning
}

// NormalizeServiceType defaults to both.
func NormalizeServiceType(raw string) ServiceType {
	switch normalize(raw) {
	case "morning":
		return ServiceMorning
	case "evening":
		return ServiceEvening
	}
	return ServiceBoth
}

// NormalizeBookingStatus defaults to active.
func NormalizeBookingStatus(raw string) BookingStatus {
	switch normalize(raw) {
	case "cancelled", "canceled":
		return BookingCancelled
	case "completed", "complete":
		return BookingCompleted
	}
	return BookingActive
}

// NormalizePassengerStatus accepts underscore spellings; unknown is pending.
func NormalizePassengerStatus(raw string) PassengerStatus {
	switch strings.ReplaceAll(normalize(raw), "_", "-") {
	case "picked-up", "onboard":
		return PassengerPickedUp
	case "dropped-off":
		return PassengerDroppedOff
	case "absent":
		return PassengerAbsent
	}
	return PassengerPending
}
