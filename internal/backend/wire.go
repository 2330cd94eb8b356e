package backend

import (
	"encoding/json"
	"strings"
	"time"

	"minibus.schoolride.org/internal/models"
)

// Timestamps arrive as Python isoformat strings, usually without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// routeWire tolerates both "name" and "route_name".
type routeWire struct {
	models.Route
	RouteName string `json:"route_name"`
}

func (w routeWire) model() models.Route {
	r := w.Route
	if r.Name == "" {
		r.Name = w.RouteName
	}
	return r
}

type locationWire struct {
	ID      int    `json:"id"`
	RouteID int    `json:"route_id"`
	Name    string `json:"name"`
	GPS     string `json:"gps_coordinates"`
	// Some endpoints call the field "gps".
	AltGPS string `json:"gps"`
}

func (w locationWire) model() models.Location {
	gps := w.GPS
	if gps == "" {
		gps = w.AltGPS
	}
	return models.Location{ID: w.ID, RouteID: w.RouteID, Name: w.Name, GPS: strings.TrimSpace(gps)}
}

type bookingWire struct {
	ID                int    `json:"id,omitempty"`
	UserID            int    `json:"user_id"`
	RouteID           int    `json:"route_id"`
	PickupLocation    string `json:"pickup_location,omitempty"`
	DropoffLocation   string `json:"dropoff_location,omitempty"`
	PickupLocationID  int    `json:"pickup_location_id,omitempty"`
	DropoffLocationID int    `json:"dropoff_location_id,omitempty"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	DaysOfWeek        string `json:"days_of_week"`
	ServiceType       string `json:"service_type"`
	SeatsBooked       int    `json:"seats_booked"`
	Status            string `json:"status,omitempty"`
}

func bookingToWire(b models.Booking) bookingWire {
	return bookingWire{
		ID:                b.ID,
		UserID:            b.UserID,
		RouteID:           b.RouteID,
		PickupLocation:    b.PickupLocation,
		DropoffLocation:   b.DropoffLocation,
		PickupLocationID:  b.PickupLocationID,
		DropoffLocationID: b.DropoffLocationID,
		StartDate:         models.FormatDate(b.StartDate),
		EndDate:           models.FormatDate(b.EndDate),
		DaysOfWeek:        b.DaysOfWeek.String(),
		ServiceType:       string(b.ServiceType),
		SeatsBooked:       b.SeatsBooked,
		Status:            string(b.Status),
	}
}

func (w bookingWire) model() (models.Booking, error) {
	start, err := models.ParseDate(w.StartDate)
	if err != nil {
		return models.Booking{}, err
	}
	end, err := models.ParseDate(w.EndDate)
	if err != nil {
		return models.Booking{}, err
	}
	days, err := models.ParseWeekdays(w.DaysOfWeek)
	if err != nil {
		return models.Booking{}, err
	}
	return models.Booking{
		ID:                w.ID,
		UserID:            w.UserID,
		RouteID:           w.RouteID,
		PickupLocation:    w.PickupLocation,
		DropoffLocation:   w.DropoffLocation,
		PickupLocationID:  w.PickupLocationID,
		DropoffLocationID: w.DropoffLocationID,
		StartDate:         start,
		EndDate:           end,
		DaysOfWeek:        days,
		ServiceType:       models.NormalizeServiceType(w.ServiceType),
		SeatsBooked:       w.SeatsBooked,
		Status:            models.NormalizeBookingStatus(w.Status),
	}, nil
}

type passengerWire struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	PickupTime      *string `json:"pickup_time"`
	DropoffTime     *string `json:"dropoff_time"`
	PickupLocation  string  `json:"pickup_location"`
	DropoffLocation string  `json:"dropoff_location"`
}

func (w passengerWire) model() models.Passenger {
	return models.Passenger{
		ID:              w.ID,
		Name:            w.Name,
		Status:          models.NormalizePassengerStatus(w.Status),
		PickedUpAt:      parseTimestamp(w.PickupTime),
		DroppedOffAt:    parseTimestamp(w.DropoffTime),
		PickupLocation:  w.PickupLocation,
		DropoffLocation: w.DropoffLocation,
	}
}

type tripWire struct {
	TripID            int             `json:"trip_id"`
	ID                int             `json:"id"`
	BookingID         int             `json:"booking_id"`
	VehicleID         int             `json:"vehicle_id"`
	TripDate          string          `json:"trip_date"`
	ServiceTime       string          `json:"service_time"`
	Status            string          `json:"status"`
	SeatsBooked       int             `json:"seats_booked"`
	PickupLocation    *string         `json:"pickup_location"`
	DropoffLocation   *string         `json:"dropoff_location"`
	ChildName         *string         `json:"child_name"`
	ActualPickupTime  *string         `json:"actual_pickup_time"`
	ActualDropoffTime *string         `json:"actual_dropoff_time"`
	Passengers        json.RawMessage `json:"passengers"`
}

// TripRecord is a trip with its passenger list. Passengers is nil when the
// backend sent no list, which is different from an empty list.
type TripRecord struct {
	Trip       models.Trip
	Passengers []models.Passenger
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (w tripWire) record(vehicleID int) (TripRecord, error) {
	id := w.TripID
	if id == 0 {
		id = w.ID
	}
	trip := models.Trip{
		ID:              id,
		BookingID:       w.BookingID,
		VehicleID:       w.VehicleID,
		Status:          models.NormalizeTripStatus(w.Status),
		SeatsBooked:     w.SeatsBooked,
		PickupLocation:  deref(w.PickupLocation),
		DropoffLocation: deref(w.DropoffLocation),
		ChildName:       deref(w.ChildName),
		ActualPickupAt:  parseTimestamp(w.ActualPickupTime),
		ActualDropoffAt: parseTimestamp(w.ActualDropoffTime),
	}
	if trip.VehicleID == 0 {
		trip.VehicleID = vehicleID
	}
	if w.ServiceTime != "" {
		trip.ServiceTime = models.NormalizeServiceTime(w.ServiceTime)
	}
	if w.TripDate != "" {
		d, err := models.ParseDate(w.TripDate)
		if err != nil {
			return TripRecord{}, err
		}
		trip.Date = d
	}

	rec := TripRecord{Trip: trip}
	if len(w.Passengers) > 0 && string(w.Passengers) != "null" {
		var ps []passengerWire
		if err := json.Unmarshal(w.Passengers, &ps); err != nil {
			return TripRecord{}, err
		}
		rec.Passengers = make([]models.Passenger, 0, len(ps))
		for _, p := range ps {
			rec.Passengers = append(rec.Passengers, p.model())
		}
	}
	return rec, nil
}
