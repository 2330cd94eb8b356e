package models

import "time"

type Trip struct {
	ID              int
	BookingID       int
	VehicleID       int
	Date            time.Time
	ServiceTime     ServiceTime
	Status          TripStatus
	SeatsBooked     int
	PickupLocation  string
	DropoffLocation string
	ChildName       string
	ActualPickupAt  *time.Time
	ActualDropoffAt *time.Time
}

type Passenger struct {
	ID              int
	Name            string
	Status          PassengerStatus
	PickedUpAt      *time.Time
	DroppedOffAt    *time.Time
	PickupLocation  string
	DropoffLocation string
}
