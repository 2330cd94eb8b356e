// Package geofence decides whether a location lies inside a route corridor:
// the set of points within a radius of the straight segment between the
// route's start and end.
package geofence

import (
	"fmt"
	"strconv"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
)

const reasonInvalidCoordinates = "invalid coordinates"

// Geofence is a route corridor as carried on the wire: endpoint GPS strings
// and a radius in kilometres.
type Geofence struct {
	Start    string
	End      string
	RadiusKm float64
}

type Result struct {
	Accepted bool
	// DistanceKm is nil when no corridor constrained the decision.
	DistanceKm *float64
	Reason     string
}

// Err converts a rejection into a fault; accepted results return nil.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	if r.DistanceKm == nil {
		return fault.InputError{Field: "location", Reason: r.Reason}
	}
	return fault.PolicyError{
		Op:          "geofence",
		Reason:      r.Reason,
		Measurement: strconv.FormatFloat(*r.DistanceKm, 'f', 3, 64) + "km",
	}
}

// Validate checks candidate against fence. Candidate syntax is checked first.
// A missing fence, an unparsable endpoint or a non-positive radius leaves the
// route unconstrained and every well-formed candidate is accepted.
func Validate(candidate string, fence *Geofence) Result {
	point, ok := geo.ParseCoordinates(candidate)
	if !ok {
		return Result{Reason: reasonInvalidCoordinates}
	}
	start, end, ok := fence.corridor()
	if !ok {
		return Result{Accepted: true}
	}

	d := geo.DistanceToSegment(point, start, end)
	if d <= fence.RadiusKm {
		return Result{Accepted: true, DistanceKm: &d}
	}
	return Result{
		DistanceKm: &d,
		Reason: fmt.Sprintf("location is %.1fkm from the route corridor (maximum allowed: %gkm)",
			d, fence.RadiusKm),
	}
}

// corridor returns the parsed endpoints when the fence constrains anything.
func (f *Geofence) corridor() (start, end geo.Coordinates, ok bool) {
	if f == nil || !(f.RadiusKm > 0) {
		return start, end, false
	}
	start, okStart := geo.ParseCoordinates(f.Start)
	end, okEnd := geo.ParseCoordinates(f.End)
	if !okStart || !okEnd {
		return start, end, false
	}
	return start, end, true
}
