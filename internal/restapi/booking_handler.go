package restapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/booking"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
	"minibus.schoolride.org/internal/tracking"
)

// weekdaysField accepts either "1,3,5" or [1,3,5].
type weekdaysField struct {
	days models.Weekdays
}

func (f *weekdaysField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var csv string
	if err := json.Unmarshal(b, &csv); err == nil {
		days, err := models.ParseWeekdays(csv)
		if err != nil {
			return err
		}
		f.days = days
		return nil
	}
	var list []int
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, d := range list {
		if d < 0 || d > 7 {
			return fault.InputError{Field: "days_of_week", Reason: "weekdays run from 1 to 7"}
		}
	}
	f.days = models.NewWeekdays(list...)
	return nil
}

func parseDateField(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fault.InputError{Field: field, Reason: "is required"}
	}
	t, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, fault.InputError{Field: field, Reason: "must be YYYY-MM-DD", Err: err}
	}
	return t, nil
}

type availabilityRequest struct {
	RouteID    int           `json:"route_id"`
	StartDate  string        `json:"start_date"`
	EndDate    string        `json:"end_date"`
	DaysOfWeek weekdaysField `json:"days_of_week"`
	Seats      int           `json:"seats"`
}

type quoteResponse struct {
	RouteID   int  `json:"route_id"`
	VehicleID int  `json:"vehicle_id"`
	Capacity  int  `json:"capacity"`
	Available int  `json:"available"`
	Seats     int  `json:"seats"`
	Adjusted  bool `json:"adjusted"`
}

func newQuoteResponse(q booking.Quote) quoteResponse {
	return quoteResponse{
		RouteID:   q.RouteID,
		VehicleID: q.VehicleID,
		Capacity:  q.Capacity,
		Available: q.Available,
		Seats:     q.Seats,
		Adjusted:  q.Adjusted,
	}
}

// availabilityHandler quotes the seats left and the requested count clamped
// to them. A shortage is reported through Adjusted, not as an error.
func (api *RestAPI) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	if req.RouteID <= 0 {
		api.sendFault(w, r, fault.InputError{Field: "route_id", Reason: "must be a positive integer"})
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}

	q, err := api.Booking.Availability(r.Context(), req.RouteID, start, end, req.DaysOfWeek.days, req.Seats)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendResponse(w, r, newQuoteResponse(q))
}

type bookingRequest struct {
	RouteID           int           `json:"route_id"`
	PickupLocation    string        `json:"pickup_location"`
	DropoffLocation   string        `json:"dropoff_location"`
	PickupLocationID  int           `json:"pickup_location_id"`
	DropoffLocationID int           `json:"dropoff_location_id"`
	PickupGPS         string        `json:"pickup_gps"`
	DropoffGPS        string        `json:"dropoff_gps"`
	StartDate         string        `json:"start_date"`
	EndDate           string        `json:"end_date"`
	DaysOfWeek        weekdaysField `json:"days_of_week"`
	ServiceType       string        `json:"service_type"`
	SeatsBooked       int           `json:"seats_booked"`
}

type bookingResponse struct {
	ID                int    `json:"id"`
	UserID            int    `json:"user_id"`
	RouteID           int    `json:"route_id"`
	PickupLocation    string `json:"pickup_location"`
	DropoffLocation   string `json:"dropoff_location"`
	PickupLocationID  int    `json:"pickup_location_id,omitempty"`
	DropoffLocationID int    `json:"dropoff_location_id,omitempty"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	DaysOfWeek        string `json:"days_of_week"`
	ServiceType       string `json:"service_type"`
	SeatsBooked       int    `json:"seats_booked"`
	Status            string `json:"status"`
	// From and To are the leg currently running, in travel order.
	From string `json:"from"`
	To   string `json:"to"`
}

func newBookingResponse(f tracking.Frame, b models.Booking) bookingResponse {
	from, to := f.Leg(b.PickupLocation, b.DropoffLocation, b.ServiceType)
	return bookingResponse{
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
		From:              from,
		To:                to,
	}
}

// createBookingHandler submits a booking for the logged-in parent.
func (api *RestAPI) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	info, err := api.Session.Current()
	if err != nil {
		api.sendFault(w, r, err)
		return
	}

	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	if req.RouteID <= 0 {
		api.sendFault(w, r, fault.InputError{Field: "route_id", Reason: "must be a positive integer"})
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}

	draft := booking.Draft{
		Booking: models.Booking{
			UserID:            info.UserID,
			RouteID:           req.RouteID,
			PickupLocation:    req.PickupLocation,
			DropoffLocation:   req.DropoffLocation,
			PickupLocationID:  req.PickupLocationID,
			DropoffLocationID: req.DropoffLocationID,
			StartDate:         start,
			EndDate:           end,
			DaysOfWeek:        req.DaysOfWeek.days,
			SeatsBooked:       req.SeatsBooked,
		},
		PickupGPS:  strings.TrimSpace(req.PickupGPS),
		DropoffGPS: strings.TrimSpace(req.DropoffGPS),
	}
	if req.ServiceType != "" {
		draft.ServiceType = models.ServiceType(strings.ToLower(strings.TrimSpace(req.ServiceType)))
	}

	created, err := api.Booking.Submit(r.Context(), draft)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusCreated, newBookingResponse(api.frame(), created))
}

// cancelBookingHandler cancels one of the session user's bookings.
func (api *RestAPI) cancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	info, err := api.Session.Current()
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		api.sendFault(w, r, err)
		return
	}

	bookings, err := api.Backend.ListBookings(r.Context(), backend.BookingFilter{UserID: info.UserID})
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	for _, b := range bookings {
		if b.ID != id {
			continue
		}
		if err := api.Booking.Cancel(r.Context(), b); err != nil {
			api.sendFault(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	api.sendNotFound(w, r, "booking not found")
}
