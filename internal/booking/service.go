// Package booking runs a parent's booking request through the corridor and
// seat checks before handing it to the backend.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/geofence"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/metrics"
	"minibus.schoolride.org/internal/models"
	"minibus.schoolride.org/internal/seats"
)

// Backend is the part of the backend client the workflow needs.
type Backend interface {
	ListRoutes(ctx context.Context) ([]models.Route, error)
	GetRoute(ctx context.Context, routeID int) (models.Route, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ListBookings(ctx context.Context, f backend.BookingFilter) ([]models.Booking, error)
	CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error)
	CancelBooking(ctx context.Context, bookingID int) error
}

// Draft is a booking request together with the coordinates of its chosen
// pickup and dropoff points. An empty GPS string skips the corridor check
// for that end.
type Draft struct {
	models.Booking
	PickupGPS  string
	DropoffGPS string
}

// Quote is the seat picture for a route over a date range.
type Quote struct {
	RouteID   int
	VehicleID int
	Capacity  int
	Available int
	// Seats is the requested count clamped to Available.
	Seats    int
	Adjusted bool
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

type Service struct {
	backend Backend
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	engine  seats.Engine

	mu    sync.Mutex
	index *geofence.CorridorIndex
}

func NewService(b Backend, hub *events.Hub, opts ...Option) *Service {
	s := &Service{backend: b, hub: hub, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "booking"))
	return s
}

// ValidateLocation checks one location against a route's corridor.
func (s *Service) ValidateLocation(ctx context.Context, routeID int, location string) (geofence.Result, error) {
	route, err := s.backend.GetRoute(ctx, routeID)
	if err != nil {
		return geofence.Result{}, err
	}
	res := geofence.Validate(location, route.Geofence())
	s.metrics.ObserveGeofence(res.Accepted)
	return res, nil
}

// LoadRoutes rebuilds the corridor index from the backend's route list.
func (s *Service) LoadRoutes(ctx context.Context) error {
	routes, err := s.backend.ListRoutes(ctx)
	if err != nil {
		return err
	}
	idx := geofence.NewCorridorIndex()
	for _, r := range routes {
		idx.Insert(r.ID, r.Geofence())
	}

	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()

	s.logger.Debug("corridor index rebuilt", slog.Int("routes", idx.Len()))
	return nil
}

// RoutesFor lists the routes whose corridor accepts location, nearest first.
// The index is built on first use.
func (s *Service) RoutesFor(ctx context.Context, location string) ([]geofence.Match, error) {
	if _, ok := geo.ParseCoordinates(location); !ok {
		return nil, fault.InputError{Field: "location", Reason: "invalid coordinates"}
	}
	s.mu.Lock()
	idx := s.index
	s.mu.Unlock()
	if idx == nil {
		if err := s.LoadRoutes(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		idx = s.index
		s.mu.Unlock()
	}
	return idx.RoutesFor(location), nil
}

// vehicleFor returns the vehicle serving routeID.
func (s *Service) vehicleFor(ctx context.Context, routeID int) (models.Vehicle, error) {
	vehicles, err := s.backend.ListVehicles(ctx)
	if err != nil {
		return models.Vehicle{}, err
	}
	for _, v := range vehicles {
		if v.RouteID == routeID {
			if err := v.Validate(); err != nil {
				return models.Vehicle{}, err
			}
			return v, nil
		}
	}
	return models.Vehicle{}, fault.InputError{Field: "route_id", Reason: fmt.Sprintf("no vehicle serves route %d", routeID)}
}

// Availability computes the seats left on routeID over the requested days
// and clamps requested to it. It never fails because seats are short.
func (s *Service) Availability(ctx context.Context, routeID int, start, end time.Time, days models.Weekdays, requested int) (Quote, error) {
	dates, err := seats.CandidateDates(start, end, days)
	if err != nil {
		s.metrics.ObserveAvailability(err)
		return Quote{}, err
	}
	vehicle, err := s.vehicleFor(ctx, routeID)
	if err != nil {
		return Quote{}, err
	}
	bookings, err := s.backend.ListBookings(ctx, backend.BookingFilter{RouteID: routeID})
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		RouteID:   routeID,
		VehicleID: vehicle.ID,
		Capacity:  vehicle.Capacity,
		Available: seats.AvailableSeats(vehicle.Capacity, dates, bookings),
	}
	q.Seats, q.Adjusted = seats.Clamp(requested, q.Available)
	s.metrics.ObserveAvailability(nil)
	s.publish(q)
	return q, nil
}

// Submit validates d and creates the booking. Nothing reaches the backend
// unless both ends lie in the corridor and the seats fit on every day.
func (s *Service) Submit(ctx context.Context, d Draft) (models.Booking, error) {
	route, err := s.backend.GetRoute(ctx, d.RouteID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := s.checkCorridor(route, d); err != nil {
		return models.Booking{}, err
	}

	vehicle, err := s.vehicleFor(ctx, d.RouteID)
	if err != nil {
		return models.Booking{}, err
	}
	if d.ServiceType == "" {
		d.ServiceType = models.ServiceBoth
	}
	if err := d.Validate(vehicle.Capacity); err != nil {
		return models.Booking{}, err
	}

	existing, err := s.backend.ListBookings(ctx, backend.BookingFilter{RouteID: d.RouteID})
	if err != nil {
		return models.Booking{}, err
	}
	available, err := s.engine.ForBooking(vehicle.Capacity, d.Booking, existing)
	s.metrics.ObserveAvailability(err)
	if err != nil {
		return models.Booking{}, err
	}

	draft := d.Booking
	draft.Status = models.BookingActive
	created, err := s.backend.CreateBooking(ctx, draft)
	if err != nil {
		return models.Booking{}, err
	}
	logging.LogOperation(s.logger, "booking_created",
		slog.Int("booking_id", created.ID),
		slog.Int("route_id", created.RouteID),
		slog.Int("seats", created.SeatsBooked))

	s.publish(Quote{
		RouteID:   d.RouteID,
		VehicleID: vehicle.ID,
		Capacity:  vehicle.Capacity,
		Available: available - draft.SeatsBooked,
	})
	return created, nil
}

func (s *Service) checkCorridor(route models.Route, d Draft) error {
	fence := route.Geofence()
	for _, gps := range []string{d.PickupGPS, d.DropoffGPS} {
		if gps == "" {
			continue
		}
		res := geofence.Validate(gps, fence)
		s.metrics.ObserveGeofence(res.Accepted)
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Cancel cancels b and republishes the freed availability over its range.
func (s *Service) Cancel(ctx context.Context, b models.Booking) error {
	if !b.Status.CanTransitionTo(models.BookingCancelled) {
		return fault.PolicyError{
			Op:          "cancel booking",
			Reason:      "booking is " + string(b.Status),
			Measurement: fmt.Sprintf("booking %d", b.ID),
		}
	}
	if err := s.backend.CancelBooking(ctx, b.ID); err != nil {
		return err
	}

	// The cancel has already happened; a failed refresh only costs the event.
	if _, err := s.Availability(ctx, b.RouteID, b.StartDate, b.EndDate, b.DaysOfWeek, 0); err != nil {
		logging.LogError(s.logger, "availability refresh after cancel failed", err,
			slog.Int("booking_id", b.ID))
	}
	return nil
}

func (s *Service) publish(q Quote) {
	if q.Available < 0 {
		q.Available = 0
	}
	s.hub.PublishAvailability(events.AvailabilityChanged{
		VehicleID: q.VehicleID,
		RouteID:   q.RouteID,
		Available: q.Available,
		Capacity:  q.Capacity,
	})
}
