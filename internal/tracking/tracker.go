package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/models"
	"minibus.schoolride.org/internal/schedule"
)

const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultTickInterval    = 2 * time.Second
)

// TripSource reports the backend's current view of a trip.
type TripSource interface {
	GetTrip(ctx context.Context, tripID int) (models.Trip, error)
}

// TripStore receives refreshed trips, typically a trips.Manager.
type TripStore interface {
	Upsert(t models.Trip) bool
}

type TrackerOption func(*Tracker)

func WithIntervals(refresh, tick time.Duration) TrackerOption {
	return func(t *Tracker) {
		if refresh > 0 {
			t.refreshInterval = refresh
		}
		if tick > 0 {
			t.tickInterval = tick
		}
	}
}

func WithEstimatorOptions(opts ...EstimatorOption) TrackerOption {
	return func(t *Tracker) { t.estimatorOpts = append(t.estimatorOpts, opts...) }
}

func WithTripStore(store TripStore) TrackerOption {
	return func(t *Tracker) { t.store = store }
}

func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// Tracker follows one trip at a time. It owns a refresh task that polls the
// trip's status and a tick task that moves the estimator while the trip is
// picked_up. Changing the tracked trip or calling Stop cancels both, and
// callbacks belonging to an earlier trip are discarded.
type Tracker struct {
	source          TripSource
	hub             *events.Hub
	clock           clock.Clock
	logger          *slog.Logger
	store           TripStore
	refreshInterval time.Duration
	tickInterval    time.Duration
	estimatorOpts   []EstimatorOption

	mu         sync.Mutex
	generation uint64
	tripID     int
	estimator  *Estimator
	refresh    *schedule.Task
	tick       *schedule.Task
}

func NewTracker(source TripSource, hub *events.Hub, clk clock.Clock, opts ...TrackerOption) *Tracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	t := &Tracker{
		source:          source,
		hub:             hub,
		clock:           clk,
		logger:          slog.Default(),
		refreshInterval: DefaultRefreshInterval,
		tickInterval:    DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("component", "tracker"))
	return t
}

// Track starts following tripID along points. Tracking the trip already
// followed is a no-op; any other trip replaces it.
func (t *Tracker) Track(ctx context.Context, tripID int, points []geo.Coordinates) error {
	est, err := NewEstimator(points, t.estimatorOpts...)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.estimator != nil && t.tripID == tripID {
		t.mu.Unlock()
		return nil
	}
	oldRefresh, oldTick := t.refresh, t.tick
	t.generation++
	gen := t.generation
	t.tripID = tripID
	t.estimator = est
	t.refresh = schedule.NewTask("trip_refresh", t.refreshInterval, t.clock,
		func(ctx context.Context) error { return t.refreshGeneration(ctx, gen) },
		schedule.WithImmediateRun(), schedule.WithLogger(t.logger))
	t.tick = schedule.NewTask("position_tick", t.tickInterval, t.clock,
		func(context.Context) error { t.advanceGeneration(gen); return nil },
		schedule.WithLogger(t.logger))
	refresh, tick := t.refresh, t.tick
	t.mu.Unlock()

	stopTasks(oldRefresh, oldTick)
	logging.LogOperation(t.logger, "tracking_trip", slog.Int("trip_id", tripID), slog.Int("points", len(points)))
	refresh.Start(ctx)
	tick.Start(ctx)
	return nil
}

// Stop cancels both tasks and forgets the tracked trip.
func (t *Tracker) Stop() {
	t.mu.Lock()
	refresh, tick := t.refresh, t.tick
	t.generation++
	t.tripID = 0
	t.estimator = nil
	t.refresh, t.tick = nil, nil
	t.mu.Unlock()

	stopTasks(refresh, tick)
}

func stopTasks(tasks ...*schedule.Task) {
	for _, task := range tasks {
		if task != nil {
			task.Stop()
		}
	}
}

// Current returns the tracked trip and its latest estimate.
func (t *Tracker) Current() (tripID int, est Estimate, ok bool) {
	t.mu.Lock()
	tripID, e := t.tripID, t.estimator
	t.mu.Unlock()
	if e == nil {
		return 0, Estimate{}, false
	}
	return tripID, e.Estimate(), true
}

// Refresh polls the backend once for the tracked trip.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()
	return t.refreshGeneration(ctx, gen)
}

// Advance moves the tracked trip one tick.
func (t *Tracker) Advance() {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()
	t.advanceGeneration(gen)
}

// Attach follows trip transitions published on hub, so a local start or
// completion moves the estimator without waiting for the next refresh. The
// returned func unsubscribes.
func (t *Tracker) Attach(hub *events.Hub) func() {
	return hub.OnTripState(t.applyTripState)
}

func (t *Tracker) applyTripState(e events.TripStateChanged) {
	t.mu.Lock()
	tripID, est := t.tripID, t.estimator
	t.mu.Unlock()
	if est == nil || tripID != e.TripID || est.State() == e.To {
		return
	}
	est.SetState(e.To)
	t.publishPosition(tripID, est.Estimate())
}

// current returns the estimator if gen is still the tracked generation.
func (t *Tracker) current(gen uint64) (int, *Estimator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation || t.estimator == nil {
		return 0, nil, false
	}
	return t.tripID, t.estimator, true
}

func (t *Tracker) refreshGeneration(ctx context.Context, gen uint64) error {
	tripID, _, ok := t.current(gen)
	if !ok {
		return nil
	}

	trip, err := t.source.GetTrip(ctx, tripID)
	if err != nil {
		if ctx.Err() == nil {
			t.hub.PublishFailure(events.Failure{Op: "refresh trip", Err: err, Retryable: fault.IsRetryable(err)})
		}
		return err
	}

	// The trip may have been replaced while the request was in flight.
	_, est, ok := t.current(gen)
	if !ok {
		return nil
	}
	if t.store != nil {
		t.store.Upsert(trip)
	}
	from := est.State()
	if from == trip.Status {
		return nil
	}
	est.SetState(trip.Status)
	t.hub.PublishTripState(events.TripStateChanged{TripID: tripID, From: from, To: trip.Status, At: t.clock.Now()})
	t.publishPosition(tripID, est.Estimate())
	return nil
}

func (t *Tracker) advanceGeneration(gen uint64) {
	tripID, est, ok := t.current(gen)
	if !ok || est.State() != models.TripPickedUp {
		return
	}
	t.publishPosition(tripID, est.Tick())
}

func (t *Tracker) publishPosition(tripID int, e Estimate) {
	t.hub.PublishPosition(events.PositionChanged{
		TripID:     tripID,
		Position:   e.Position,
		Index:      e.Index,
		ETAMinutes: e.ETA.Minutes,
		ETAKnown:   e.ETA.Known,
		Looping:    e.Looping,
		At:         t.clock.Now(),
	})
}
