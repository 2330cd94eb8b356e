package restapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
	"minibus.schoolride.org/internal/tracking"
	"minibus.schoolride.org/internal/trips"
)

type passengerView struct {
	ID              int        `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	PickedUpAt      *time.Time `json:"picked_up_at,omitempty"`
	DroppedOffAt    *time.Time `json:"dropped_off_at,omitempty"`
	PickupLocation  string     `json:"pickup_location,omitempty"`
	DropoffLocation string     `json:"dropoff_location,omitempty"`
}

type tripView struct {
	TripID            int             `json:"trip_id"`
	BookingID         int             `json:"booking_id"`
	VehicleID         int             `json:"vehicle_id"`
	TripDate          string          `json:"trip_date"`
	ServiceTime       string          `json:"service_time"`
	Status            string          `json:"status"`
	SeatsBooked       int             `json:"seats_booked"`
	ChildName         string          `json:"child_name,omitempty"`
	PickupLocation    string          `json:"pickup_location"`
	DropoffLocation   string          `json:"dropoff_location"`
	From              string          `json:"from"`
	To                string          `json:"to"`
	ActualPickupTime  *time.Time      `json:"actual_pickup_time,omitempty"`
	ActualDropoffTime *time.Time      `json:"actual_dropoff_time,omitempty"`
	Passengers        []passengerView `json:"passengers"`
	Approximate       bool            `json:"approximate"`
	Counts            trips.Counts    `json:"counts"`
	Progress          int             `json:"progress"`
}

type tripsResponse struct {
	ServiceTime string       `json:"service_time"`
	Trips       []tripView   `json:"trips"`
	Totals      trips.Counts `json:"totals"`
	Current     *int         `json:"current_trip_id,omitempty"`
	Upcoming    *int         `json:"upcoming_trip_id,omitempty"`
}

func (api *RestAPI) frame() tracking.Frame {
	return tracking.NewFrame(api.Clock.Now(), api.Windows)
}

// buildTripView renders one trip. The frame is shared by every trip of a
// response so they all agree on the direction.
func (api *RestAPI) buildTripView(f tracking.Frame, t models.Trip) tripView {
	mgr := api.Driver.Trips()
	from, to := f.TripLeg(t)
	v := tripView{
		TripID:            t.ID,
		BookingID:         t.BookingID,
		VehicleID:         t.VehicleID,
		TripDate:          models.FormatDate(t.Date),
		ServiceTime:       string(t.ServiceTime),
		Status:            string(t.Status),
		SeatsBooked:       t.SeatsBooked,
		ChildName:         t.ChildName,
		PickupLocation:    t.PickupLocation,
		DropoffLocation:   t.DropoffLocation,
		From:              from,
		To:                to,
		ActualPickupTime:  t.ActualPickupAt,
		ActualDropoffTime: t.ActualDropoffAt,
		Passengers:        []passengerView{},
	}
	if t.Date.IsZero() {
		v.TripDate = ""
	}

	if _, detail, ok := mgr.Trip(t.ID); ok {
		switch d := detail.(type) {
		case trips.Known:
			for _, p := range d.Passengers {
				v.Passengers = append(v.Passengers, passengerView{
					ID:              p.ID,
					Name:            p.Name,
					Status:          string(p.Status),
					PickedUpAt:      p.PickedUpAt,
					DroppedOffAt:    p.DroppedOffAt,
					PickupLocation:  p.PickupLocation,
					DropoffLocation: p.DropoffLocation,
				})
			}
		case trips.Approximate:
			v.Approximate = true
		}
	}
	v.Counts, _ = mgr.TripCounts(t.ID)
	v.Progress, _ = mgr.Progress(t.ID)
	return v
}

// tripsHandler lists today's trips of the driver's vehicle. An optional
// service_time filter selects one leg; "current" selects the leg of the
// present time of day.
func (api *RestAPI) tripsHandler(w http.ResponseWriter, r *http.Request) {
	f := api.frame()
	mgr := api.Driver.Trips()

	var list []models.Trip
	switch st := strings.ToLower(r.URL.Query().Get("service_time")); st {
	case "":
		list = mgr.Trips()
	case "current":
		list = mgr.ByServiceTime(f.ServiceTime)
	case string(models.ServiceTimeMorning), string(models.ServiceTimeEvening):
		list = mgr.ByServiceTime(models.ServiceTime(st))
	default:
		api.sendFault(w, r, fault.InputError{Field: "service_time", Reason: "must be morning, evening or current"})
		return
	}

	resp := tripsResponse{
		ServiceTime: string(f.ServiceTime),
		Trips:       make([]tripView, 0, len(list)),
		Totals:      mgr.Aggregates(),
	}
	for _, t := range list {
		resp.Trips = append(resp.Trips, api.buildTripView(f, t))
	}
	if t, ok := mgr.Current(); ok {
		resp.Current = &t.ID
	}
	if t, ok := mgr.Upcoming(); ok {
		resp.Upcoming = &t.ID
	}
	api.sendResponse(w, r, resp)
}

// reloadTripsHandler refetches today's trips for the driver's vehicle.
func (api *RestAPI) reloadTripsHandler(w http.ResponseWriter, r *http.Request) {
	info, err := api.Session.Current()
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	if err := api.Driver.Load(r.Context(), info.VehicleID); err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.tripsHandler(w, r)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// tripFromPath resolves the {id} path value to a loaded trip, writing the
// error response when it cannot.
func (api *RestAPI) tripFromPath(w http.ResponseWriter, r *http.Request) (models.Trip, bool) {
	id, err := pathInt(r, "id")
	if err != nil {
		api.sendFault(w, r, err)
		return models.Trip{}, false
	}
	t, _, ok := api.Driver.Trips().Trip(id)
	if !ok {
		api.sendNotFound(w, r, "trip not found")
		return models.Trip{}, false
	}
	return t, true
}

func (api *RestAPI) respondWithTrip(w http.ResponseWriter, r *http.Request, tripID int) {
	t, _, ok := api.Driver.Trips().Trip(tripID)
	if !ok {
		api.sendNotFound(w, r, "trip not found")
		return
	}
	api.sendResponse(w, r, api.buildTripView(api.frame(), t))
}

func (api *RestAPI) startTripHandler(w http.ResponseWriter, r *http.Request) {
	api.transitionHandler(w, r, api.Driver.StartTrip)
}

func (api *RestAPI) completeTripHandler(w http.ResponseWriter, r *http.Request) {
	api.transitionHandler(w, r, api.Driver.CompleteTrip)
}

func (api *RestAPI) transitionHandler(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, tripID int, notes string) error) {
	t, ok := api.tripFromPath(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	if err := apply(r.Context(), t.ID, strings.TrimSpace(req.Notes)); err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.respondWithTrip(w, r, t.ID)
}

type markRequest struct {
	Status string `json:"status"`
}

// parsePassengerStatus only accepts the statuses a driver may set.
func parsePassengerStatus(raw string) (models.PassengerStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fault.InputError{Field: "status", Reason: "is required"}
	}
	st := models.NormalizePassengerStatus(raw)
	if st == models.PassengerPending {
		return "", fault.InputError{Field: "status", Reason: "must be picked-up, dropped-off or absent"}
	}
	return st, nil
}

func (api *RestAPI) markPassengerHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := api.tripFromPath(w, r)
	if !ok {
		return
	}
	pid, err := pathInt(r, "pid")
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	var req markRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	status, err := parsePassengerStatus(req.Status)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	if err := api.Driver.MarkPassenger(r.Context(), t.ID, pid, status); err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.respondWithTrip(w, r, t.ID)
}

type markPendingResponse struct {
	Changed int      `json:"changed"`
	Trip    tripView `json:"trip"`
}

// markPendingHandler moves every pending passenger at once. Without a body
// they are marked picked up.
func (api *RestAPI) markPendingHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := api.tripFromPath(w, r)
	if !ok {
		return
	}
	req := markRequest{Status: string(models.PassengerPickedUp)}
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	status, err := parsePassengerStatus(req.Status)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	changed, err := api.Driver.MarkAllPending(r.Context(), t.ID, status)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	updated, _, _ := api.Driver.Trips().Trip(t.ID)
	api.sendResponse(w, r, markPendingResponse{
		Changed: changed,
		Trip:    api.buildTripView(api.frame(), updated),
	})
}
