// Package tracking estimates where a minibus is along its route polyline
// and keeps that estimate current while a trip is under way.
package tracking

import (
	"math"
	"sync"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/models"
)

// DefaultSpeedKmh is the assumed average speed in town traffic.
const DefaultSpeedKmh = 30.0

type EstimatorOption func(*Estimator)

func WithSpeedKmh(kmh float64) EstimatorOption {
	return func(e *Estimator) {
		if kmh > 0 {
			e.speedKmh = kmh
		}
	}
}

// WithDemoLoop lets the estimator wrap to the start after the final vertex.
// Estimates produced after a wrap are flagged Looping.
func WithDemoLoop() EstimatorOption {
	return func(e *Estimator) { e.demoLoop = true }
}

type ETA struct {
	Minutes int
	// Known is false until the trip has started.
	Known bool
}

type Estimate struct {
	Position      geo.Coordinates
	Index         int
	ETA           ETA
	Started       bool
	AtDestination bool
	Looping       bool
}

type Estimator struct {
	mu       sync.Mutex
	points   []geo.Coordinates
	speedKmh float64
	demoLoop bool

	state   models.TripStatus
	index   int
	looping bool
}

func NewEstimator(points []geo.Coordinates, opts ...EstimatorOption) (*Estimator, error) {
	if len(points) == 0 {
		return nil, fault.InputError{Field: "polyline", Reason: "at least one point is required"}
	}
	e := &Estimator{
		points:   append([]geo.Coordinates(nil), points...),
		speedKmh: DefaultSpeedKmh,
		state:    models.TripScheduled,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewEstimatorFromPolyline decodes an encoded polyline first.
func NewEstimatorFromPolyline(encoded string, opts ...EstimatorOption) (*Estimator, error) {
	points, err := geo.DecodePolyline(encoded)
	if err != nil {
		return nil, fault.InputError{Field: "polyline", Reason: "cannot decode", Err: err}
	}
	return NewEstimator(points, opts...)
}

// SetState records the trip's lifecycle state. Any state other than
// picked_up pins the position back at the first point.
func (e *Estimator) SetState(s models.TripStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	if s != models.TripPickedUp {
		e.index = 0
		e.looping = false
	}
}

func (e *Estimator) State() models.TripStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Tick advances one vertex while picked_up and returns the new estimate.
// The final vertex holds unless demo looping is enabled.
func (e *Estimator) Tick() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == models.TripPickedUp {
		last := len(e.points) - 1
		switch {
		case e.index < last:
			e.index++
		case e.demoLoop && last > 0:
			e.index = 0
			e.looping = true
		}
	}
	return e.estimate()
}

func (e *Estimator) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimate()
}

func (e *Estimator) estimate() Estimate {
	last := len(e.points) - 1
	est := Estimate{
		Position:      e.points[e.index],
		Index:         e.index,
		Started:       e.state == models.TripPickedUp,
		AtDestination: e.index == last,
		Looping:       e.looping,
	}
	if est.Started {
		est.ETA = ETA{Minutes: etaMinutes(est.Position, e.points[last], e.speedKmh), Known: true}
	}
	return est
}

func etaMinutes(from, to geo.Coordinates, speedKmh float64) int {
	d := geo.Distance(from, to)
	if d == 0 {
		return 0
	}
	return int(math.Round(d / speedKmh * 60))
}
