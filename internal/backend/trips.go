package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

// TripsToday lists today's open trips of a vehicle for one leg.
func (c *Client) TripsToday(ctx context.Context, vehicleID int, st models.ServiceTime) ([]TripRecord, error) {
	if vehicleID <= 0 {
		return nil, fault.InputError{Field: "vehicle_id", Reason: "is required"}
	}
	q := url.Values{
		"vehicle_id":   {strconv.Itoa(vehicleID)},
		"service_time": {string(st)},
	}
	var raw json.RawMessage
	if err := c.do(ctx, request{op: "trips_today", method: http.MethodGet, path: "/trips/today", query: q}, &raw); err != nil {
		return nil, err
	}
	wires, err := decodeList[tripWire](raw, "trips")
	if err != nil {
		return nil, decodeFailure("trips_today", err)
	}
	out := make([]TripRecord, 0, len(wires))
	for _, w := range wires {
		rec, err := w.record(vehicleID)
		if err != nil {
			return nil, decodeFailure("trips_today", err)
		}
		if rec.Trip.ServiceTime == "" {
			rec.Trip.ServiceTime = st
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) GetTrip(ctx context.Context, tripID int) (models.Trip, error) {
	rec, err := c.tripCall(ctx, "get_trip", http.MethodGet, "/trips/"+strconv.Itoa(tripID), nil)
	return rec.Trip, err
}

// PickupTrip marks the trip picked up on the backend.
func (c *Client) PickupTrip(ctx context.Context, tripID int, notes string) (models.Trip, error) {
	rec, err := c.tripCall(ctx, "pickup_trip", http.MethodPatch, "/trips/"+strconv.Itoa(tripID)+"/pickup", notesBody(notes))
	return rec.Trip, err
}

// DropoffTrip marks the trip completed on the backend.
func (c *Client) DropoffTrip(ctx context.Context, tripID int, notes string) (models.Trip, error) {
	rec, err := c.tripCall(ctx, "dropoff_trip", http.MethodPatch, "/trips/"+strconv.Itoa(tripID)+"/dropoff", notesBody(notes))
	return rec.Trip, err
}

func notesBody(notes string) any {
	if notes == "" {
		return map[string]string{}
	}
	return map[string]string{"driver_notes": notes}
}

func (c *Client) tripCall(ctx context.Context, op, method, path string, body any) (TripRecord, error) {
	var w tripWire
	if err := c.do(ctx, request{op: op, method: method, path: path, body: body}, &w); err != nil {
		return TripRecord{}, err
	}
	rec, err := w.record(0)
	if err != nil {
		return TripRecord{}, decodeFailure(op, err)
	}
	return rec, nil
}

func (c *Client) ListPassengers(ctx context.Context, tripID int) ([]models.Passenger, error) {
	var raw json.RawMessage
	path := "/trips/" + strconv.Itoa(tripID) + "/passengers"
	if err := c.do(ctx, request{op: "list_passengers", method: http.MethodGet, path: path}, &raw); err != nil {
		return nil, err
	}
	wires, err := decodeList[passengerWire](raw, "passengers")
	if err != nil {
		return nil, decodeFailure("list_passengers", err)
	}
	out := make([]models.Passenger, len(wires))
	for i, w := range wires {
		out[i] = w.model()
	}
	return out, nil
}

func (c *Client) MarkPassenger(ctx context.Context, tripID, passengerID int, status models.PassengerStatus) error {
	req := request{
		op:     "mark_passenger",
		method: http.MethodPatch,
		path:   "/trips/" + strconv.Itoa(tripID) + "/passengers/" + strconv.Itoa(passengerID),
		body:   map[string]string{"status": string(status)},
	}
	return c.do(ctx, req, nil)
}
