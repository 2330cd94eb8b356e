package restapi

import (
	"context"
	"net/http"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
)

type trackRequest struct {
	// Polyline is an encoded polyline of the trip's path.
	Polyline string `json:"polyline"`
	// Points is the path as "lat,lng" strings, used when Polyline is empty.
	Points []string `json:"points"`
}

type positionResponse struct {
	TripID        int     `json:"trip_id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Index         int     `json:"index"`
	ETAMinutes    *int    `json:"eta_minutes"`
	Started       bool    `json:"started"`
	AtDestination bool    `json:"at_destination"`
	Looping       bool    `json:"looping,omitempty"`
}

// trackPath picks the path to follow: the request's polyline, its point
// list, or the straight line between the trip's endpoints when those are
// coordinates.
func (api *RestAPI) trackPath(req trackRequest, from, to string) ([]geo.Coordinates, error) {
	switch {
	case req.Polyline != "":
		pts, err := geo.DecodePolyline(req.Polyline)
		if err != nil {
			return nil, fault.InputError{Field: "polyline", Reason: "cannot be decoded", Err: err}
		}
		return pts, nil
	case len(req.Points) > 0:
		pts, err := geo.ParsePolyline(req.Points)
		if err != nil {
			return nil, fault.InputError{Field: "points", Reason: "invalid coordinates", Err: err}
		}
		return pts, nil
	}
	a, okFrom := geo.ParseCoordinates(from)
	b, okTo := geo.ParseCoordinates(to)
	if !okFrom || !okTo {
		return nil, fault.InputError{Field: "polyline", Reason: "is required when the trip endpoints are not coordinates"}
	}
	return []geo.Coordinates{a, b}, nil
}

// trackTripHandler starts following a trip. Tasks run on the application's
// base context so they outlive the request.
func (api *RestAPI) trackTripHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := api.tripFromPath(w, r)
	if !ok {
		return
	}
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	from, to := api.frame().TripLeg(t)
	points, err := api.trackPath(req, from, to)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	if err := api.Tracker.Track(api.baseContext(), t.ID, points); err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusAccepted, api.position(t.ID))
}

func (api *RestAPI) baseContext() context.Context {
	if api.BaseContext == nil {
		return context.Background()
	}
	return api.BaseContext
}

func (api *RestAPI) untrackTripHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	if current, _, ok := api.Tracker.Current(); ok && current == id {
		api.Tracker.Stop()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *RestAPI) positionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	pos := api.position(id)
	if pos == nil {
		api.sendNotFound(w, r, "trip is not being tracked")
		return
	}
	api.sendResponse(w, r, pos)
}

func (api *RestAPI) position(tripID int) *positionResponse {
	current, est, ok := api.Tracker.Current()
	if !ok || current != tripID {
		return nil
	}
	resp := &positionResponse{
		TripID:        tripID,
		Lat:           est.Position.Lat,
		Lng:           est.Position.Lng,
		Index:         est.Index,
		Started:       est.Started,
		AtDestination: est.AtDestination,
		Looping:       est.Looping,
	}
	if est.ETA.Known {
		minutes := est.ETA.Minutes
		resp.ETAMinutes = &minutes
	}
	return resp
}
