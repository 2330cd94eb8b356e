package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-polyline"
)

// DecodePolyline decodes a Google encoded polyline as returned by the
// routing service.
func DecodePolyline(encoded string) ([]Coordinates, error) {
	if encoded == "" {
		return nil, errors.New("empty polyline")
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}

	points := make([]Coordinates, 0, len(coords))
	for _, c := range coords {
		p := Coordinates{Lat: c[0], Lng: c[1]}
		if !p.Valid() {
			return nil, fmt.Errorf("decode polyline: point %v out of range", c)
		}
		points = append(points, p)
	}
	return points, nil
}

// EncodePolyline is the inverse of DecodePolyline at 1e-5 precision.
func EncodePolyline(points []Coordinates) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// ParsePolyline parses a list of "lat,lng" strings.
func ParsePolyline(points []string) ([]Coordinates, error) {
	out := make([]Coordinates, 0, len(points))
	for i, s := range points {
		c, ok := ParseCoordinates(s)
		if !ok {
			return nil, fmt.Errorf("point %d: invalid coordinates %q", i, s)
		}
		out = append(out, c)
	}
	return out, nil
}

// PathLength sums the haversine length of consecutive points.
func PathLength(points []Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}
