// Package geo holds the pure geometry used by the geofence validator and the
// position estimator. Distances are in kilometres.
package geo

import (
	"math"
	"strconv"
	"strings"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// String renders "lat,lng" using the shortest representation that parses
// back to the same values.
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Valid reports whether c lies within the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// ParseCoordinates parses "lat,lng". Surrounding whitespace is tolerated.
// It returns false on a missing comma, non-numeric parts or out-of-range values.
func ParseCoordinates(text string) (Coordinates, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 2 {
		return Coordinates{}, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, false
	}

	c := Coordinates{Lat: lat, Lng: lng}
	if math.IsInf(lat, 0) || math.IsInf(lng, 0) || !c.Valid() {
		return Coordinates{}, false
	}
	return c, true
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance is the haversine great-circle distance between a and b.
func Distance(a, b Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ClosestPointOnSegment projects p onto the segment s→e in a planar
// approximation (longitude as x, latitude as y) with the projection
// parameter clamped to [0,1].
func ClosestPointOnSegment(p, s, e Coordinates) Coordinates {
	abx := e.Lng - s.Lng
	aby := e.Lat - s.Lat
	lengthSq := abx*abx + aby*aby
	if lengthSq == 0 {
		return s
	}

	t := ((p.Lng-s.Lng)*abx + (p.Lat-s.Lat)*aby) / lengthSq
	t = math.Max(0, math.Min(1, t))

	return Coordinates{Lat: s.Lat + t*aby, Lng: s.Lng + t*abx}
}

// DistanceToSegment is the haversine distance from p to the closest point of
// the segment s→e. A degenerate segment degrades to Distance(p, s).
func DistanceToSegment(p, s, e Coordinates) float64 {
	if s == e {
		return Distance(p, s)
	}
	return Distance(p, ClosestPointOnSegment(p, s, e))
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether c is inside b, edges included.
func (b Bounds) Contains(c Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Union returns the smallest box covering b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MinLng: math.Min(b.MinLng, o.MinLng),
		MaxLng: math.Max(b.MaxLng, o.MaxLng),
	}
}

// CalculateBounds returns the box of radiusKm around center.
func CalculateBounds(center Coordinates, radiusKm float64) Bounds {
	latRadians := toRadians(center.Lat)

	latOffset := radiusKm / EarthRadiusKm * 180 / math.Pi
	// Near the poles cos→0; cap the longitude span to the whole range.
	lngOffset := 180.0
	if cos := math.Cos(latRadians); cos > 1e-9 {
		lngOffset = math.Min(180, radiusKm/(EarthRadiusKm*cos)*180/math.Pi)
	}

	return Bounds{
		MinLat: math.Max(-90, center.Lat-latOffset),
		MaxLat: math.Min(90, center.Lat+latOffset),
		MinLng: math.Max(-180, center.Lng-lngOffset),
		MaxLng: math.Min(180, center.Lng+lngOffset),
	}
}

// SegmentBounds covers every point within radiusKm of the segment s→e.
func SegmentBounds(s, e Coordinates, radiusKm float64) Bounds {
	return CalculateBounds(s, radiusKm).Union(CalculateBounds(e, radiusKm))
}
