package restapi

import (
	"net/http"

	"minibus.schoolride.org/internal/geofence"
)

type validateResponse struct {
	RouteID    int      `json:"route_id"`
	Location   string   `json:"location"`
	Accepted   bool     `json:"accepted"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// validateLocationHandler answers whether a location lies in a route's
// corridor. A rejection is a normal 200 answer; only bad input and backend
// failures are errors.
func (api *RestAPI) validateLocationHandler(w http.ResponseWriter, r *http.Request) {
	routeID, err := queryInt(r, "route_id")
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	location := r.URL.Query().Get("location")

	res, err := api.Booking.ValidateLocation(r.Context(), routeID, location)
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	if !res.Accepted && res.DistanceKm == nil {
		api.sendFault(w, r, res.Err())
		return
	}
	api.sendResponse(w, r, validateResponse{
		RouteID:    routeID,
		Location:   location,
		Accepted:   res.Accepted,
		DistanceKm: res.DistanceKm,
		Reason:     res.Reason,
	})
}

type routeMatch struct {
	RouteID    int      `json:"route_id"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

func (api *RestAPI) routesForLocationHandler(w http.ResponseWriter, r *http.Request) {
	matches, err := api.Booking.RoutesFor(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendResponse(w, r, map[string]any{"routes": toRouteMatches(matches)})
}

func toRouteMatches(in []geofence.Match) []routeMatch {
	out := make([]routeMatch, 0, len(in))
	for _, m := range in {
		out = append(out, routeMatch{RouteID: m.RouteID, DistanceKm: m.DistanceKm})
	}
	return out
}
