package models

import (
	"strings"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geofence"
)

// DefaultRouteRadiusKm applies when a route carries no radius of its own.
const DefaultRouteRadiusKm = 5.0

type Route struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	StartingPoint    string   `json:"starting_point"`
	EndingPoint      string   `json:"ending_point"`
	StartingPointGPS *string  `json:"starting_point_gps,omitempty"`
	EndingPointGPS   *string  `json:"ending_point_gps,omitempty"`
	RadiusKm         *float64 `json:"route_radius_km,omitempty"`
}

// Radius returns the corridor radius, falling back to DefaultRouteRadiusKm.
func (r Route) Radius() float64 {
	if r.RadiusKm == nil {
		return DefaultRouteRadiusKm
	}
	return *r.RadiusKm
}

// Geofence returns the route corridor, or nil when either endpoint GPS is missing.
func (r Route) Geofence() *geofence.Geofence {
	start, end := trimmed(r.StartingPointGPS), trimmed(r.EndingPointGPS)
	if start == "" || end == "" {
		return nil
	}
	return &geofence.Geofence{Start: start, End: end, RadiusKm: r.Radius()}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

type Vehicle struct {
	ID           int    `json:"id"`
	RouteID      int    `json:"route_id"`
	LicensePlate string `json:"license_plate"`
	Model        string `json:"model"`
	Capacity     int    `json:"capacity"`
}

// Validate rejects vehicles that cannot carry anyone.
func (v Vehicle) Validate() error {
	if v.Capacity < 1 {
		return fault.InputError{Field: "capacity", Reason: "must be at least 1"}
	}
	return nil
}

// Location is a named pickup point or school on a route.
type Location struct {
	ID      int    `json:"id"`
	RouteID int    `json:"route_id,omitempty"`
	Name    string `json:"name"`
	GPS     string `json:"gps_coordinates"`
}
