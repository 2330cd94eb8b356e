// Package driver is the driver's view of the day: today's trips for the
// assigned vehicle and the actions that move them along. Every action is
// applied locally first and rolled back when the backend refuses it.
package driver

import (
	"context"
	"log/slog"
	"sync"

	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/metrics"
	"minibus.schoolride.org/internal/models"
	"minibus.schoolride.org/internal/optimistic"
	"minibus.schoolride.org/internal/trips"
)

// Backend is the part of the backend client the console needs.
type Backend interface {
	TripsToday(ctx context.Context, vehicleID int, st models.ServiceTime) ([]backend.TripRecord, error)
	PickupTrip(ctx context.Context, tripID int, notes string) (models.Trip, error)
	DropoffTrip(ctx context.Context, tripID int, notes string) (models.Trip, error)
	ListPassengers(ctx context.Context, tripID int) ([]models.Passenger, error)
	MarkPassenger(ctx context.Context, tripID, passengerID int, status models.PassengerStatus) error
}

type Option func(*Console)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Console) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.logger = l }
}

type Console struct {
	backend Backend
	trips   *trips.Manager
	hub     *events.Hub
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	// mu serialises actions and store writes, so a rollback never discards
	// another action's change or a refreshed trip.
	mu        sync.Mutex
	vehicleID int
}

func NewConsole(b Backend, mgr *trips.Manager, hub *events.Hub, clk clock.Clock, opts ...Option) *Console {
	if clk == nil {
		clk = clock.RealClock{}
	}
	c := &Console{backend: b, trips: mgr, hub: hub, clock: clk, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "driver_console"))
	return c
}

// Trips exposes the manager holding the loaded trips.
func (c *Console) Trips() *trips.Manager {
	return c.trips
}

// VehicleID is the vehicle of the last successful Load, or 0.
func (c *Console) VehicleID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vehicleID
}

// Load fetches both legs of today's trips for vehicleID. Trips that came
// with a passenger list get Known detail; the rest stay Approximate.
func (c *Console) Load(ctx context.Context, vehicleID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []backend.TripRecord
	for _, st := range []models.ServiceTime{models.ServiceTimeMorning, models.ServiceTimeEvening} {
		recs, err := c.backend.TripsToday(ctx, vehicleID, st)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}

	list := make([]models.Trip, len(records))
	for i, r := range records {
		list[i] = r.Trip
	}
	c.trips.Load(list)
	for _, r := range records {
		if r.Passengers == nil {
			continue
		}
		if err := c.trips.SetPassengers(r.Trip.ID, r.Passengers); err != nil {
			return err
		}
	}
	c.vehicleID = vehicleID

	logging.LogOperation(c.logger, "trips_loaded",
		slog.Int("vehicle_id", vehicleID),
		slog.Int("trips", len(list)))
	return nil
}

// Upsert stores a trip refreshed from the backend. It waits for any action
// in flight, so a rollback cannot overwrite the fresher copy.
func (c *Console) Upsert(t models.Trip) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trips.Upsert(t)
}

// Reset forgets the loaded trips and vehicle, as on logout.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips.Load(nil)
	c.vehicleID = 0
}

// RefreshPassengers replaces a trip's passenger list with the backend's.
func (c *Console) RefreshPassengers(ctx context.Context, tripID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, _, ok := c.trips.Trip(tripID); !ok {
		return fault.InputError{Field: "trip_id", Reason: "unknown trip"}
	}
	ps, err := c.backend.ListPassengers(ctx, tripID)
	if err != nil {
		return err
	}
	return c.trips.SetPassengers(tripID, ps)
}

// StartTrip picks the trip up locally and confirms it with the backend.
func (c *Console) StartTrip(ctx context.Context, tripID int, notes string) error {
	return c.transition(ctx, tripID, trips.TransitionStart,
		func() error { return c.trips.StartTrip(tripID) },
		func(ctx context.Context) error {
			_, err := c.backend.PickupTrip(ctx, tripID, notes)
			return err
		})
}

// CompleteTrip completes the trip locally and confirms it with the backend.
func (c *Console) CompleteTrip(ctx context.Context, tripID int, notes string) error {
	return c.transition(ctx, tripID, trips.TransitionComplete,
		func() error { return c.trips.CompleteTrip(tripID) },
		func(ctx context.Context) error {
			_, err := c.backend.DropoffTrip(ctx, tripID, notes)
			return err
		})
}

func (c *Console) transition(ctx context.Context, tripID int, name string, mutate func() error, confirm func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	before, _, _ := c.trips.Trip(tripID)
	err := optimistic.Apply[trips.TripSnapshot](ctx, c.trips.Scope(tripID), mutate, confirm)
	c.metrics.ObserveTransition(name, err)
	if err != nil {
		logging.LogError(c.logger, "trip transition failed", err,
			slog.String("transition", name), slog.Int("trip_id", tripID))
		return err
	}

	after, _, _ := c.trips.Trip(tripID)
	if after.Status != before.Status {
		c.hub.PublishTripState(events.TripStateChanged{
			TripID: tripID,
			From:   before.Status,
			To:     after.Status,
			At:     c.clock.Now(),
		})
	}
	return nil
}

// MarkPassenger moves one passenger to status.
func (c *Console) MarkPassenger(ctx context.Context, tripID, passengerID int, status models.PassengerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := optimistic.Apply[trips.TripSnapshot](ctx, c.trips.Scope(tripID),
		func() error { return c.trips.MarkPassenger(tripID, passengerID, status) },
		func(ctx context.Context) error {
			return c.backend.MarkPassenger(ctx, tripID, passengerID, status)
		})
	c.metrics.ObserveTransition(trips.TransitionMark, err)
	return err
}

// MarkAllPending moves every pending passenger of the trip to status and
// returns how many changed. If any confirmation fails, every local change is
// rolled back, including those the backend already accepted.
func (c *Console) MarkAllPending(ctx context.Context, tripID int, status models.PassengerStatus) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.pendingPassengers(tripID)

	tx := optimistic.Begin[trips.TripSnapshot](c.trips.Scope(tripID))
	defer tx.Rollback()

	changed, err := c.trips.MarkAllPending(tripID, status)
	if err != nil {
		c.metrics.ObserveTransition(trips.TransitionMark, err)
		return 0, err
	}
	for _, id := range pending {
		if err := c.backend.MarkPassenger(ctx, tripID, id, status); err != nil {
			c.metrics.ObserveTransition(trips.TransitionMark, err)
			logging.LogError(c.logger, "bulk passenger mark rolled back", err,
				slog.Int("trip_id", tripID), slog.Int("passenger_id", id))
			return 0, err
		}
	}
	tx.Commit()
	c.metrics.ObserveTransition(trips.TransitionMark, nil)
	return changed, nil
}

func (c *Console) pendingPassengers(tripID int) []int {
	_, detail, ok := c.trips.Trip(tripID)
	if !ok {
		return nil
	}
	known, ok := detail.(trips.Known)
	if !ok {
		return nil
	}
	var ids []int
	for _, p := range known.Passengers {
		if p.Status == models.PassengerPending {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
