// Package trips holds the trip and passenger state machines for one
// session's set of trips.
package trips

import (
	"sort"
	"sync"
	"time"

	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

type tripState struct {
	trip   models.Trip
	detail PassengerDetail
}

func (s tripState) clone() tripState {
	out := tripState{trip: s.trip, detail: cloneDetail(s.detail)}
	if s.trip.ActualPickupAt != nil {
		t := *s.trip.ActualPickupAt
		out.trip.ActualPickupAt = &t
	}
	if s.trip.ActualDropoffAt != nil {
		t := *s.trip.ActualDropoffAt
		out.trip.ActualDropoffAt = &t
	}
	return out
}

// Snapshot is an opaque copy of the manager state used for rollback.
type Snapshot struct {
	trips []tripState
}

// Manager owns the trips of a session. Timers and request handlers call it
// from different goroutines, so every method locks.
type Manager struct {
	mu    sync.Mutex
	clock clock.Clock
	trips []tripState
	index map[int]int
}

func NewManager(clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{clock: clk, index: make(map[int]int)}
}

// Load replaces the trip list. Passenger lists already loaded for a trip
// that is still present are kept; every other trip starts Approximate.
func (m *Manager) Load(trips []models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.index
	oldTrips := m.trips
	m.trips = make([]tripState, 0, len(trips))
	m.index = make(map[int]int, len(trips))
	for _, t := range trips {
		state := tripState{trip: t, detail: Approximate{Count: t.SeatsBooked}}
		if i, ok := old[t.ID]; ok {
			if known, ok := oldTrips[i].detail.(Known); ok {
				state.detail = known
			}
		}
		m.index[t.ID] = len(m.trips)
		m.trips = append(m.trips, state)
	}
}

// Upsert records the backend's view of a trip, bypassing the transition
// guards. It reports whether the stored status changed.
func (m *Manager) Upsert(t models.Trip) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[t.ID]; ok {
		changed := m.trips[i].trip.Status != t.Status
		m.trips[i].trip = t
		if a, ok := m.trips[i].detail.(Approximate); ok {
			a.Count = t.SeatsBooked
			m.trips[i].detail = a
		}
		return changed
	}
	m.index[t.ID] = len(m.trips)
	m.trips = append(m.trips, tripState{trip: t, detail: Approximate{Count: t.SeatsBooked}})
	return true
}

// SetPassengers attaches a passenger list, switching the trip to Known detail.
func (m *Manager) SetPassengers(tripID int, passengers []models.Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return err
	}
	s.detail = Known{Passengers: clonePassengers(passengers)}
	return nil
}

// Trip returns a copy of the trip and its passenger detail.
func (m *Manager) Trip(tripID int) (models.Trip, PassengerDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[tripID]
	if !ok {
		return models.Trip{}, nil, false
	}
	c := m.trips[i].clone()
	return c.trip, c.detail, true
}

// Trips returns copies of all trips in load order.
func (m *Manager) Trips() []models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Trip, len(m.trips))
	for i, s := range m.trips {
		out[i] = s.clone().trip
	}
	return out
}

// ByServiceTime returns the trips of one leg, ordered by trip ID.
func (m *Manager) ByServiceTime(st models.ServiceTime) []models.Trip {
	var out []models.Trip
	for _, t := range m.Trips() {
		if t.ServiceTime == st {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Current is the first trip under way.
func (m *Manager) Current() (models.Trip, bool) {
	return m.first(models.TripPickedUp)
}

// Upcoming is the first scheduled trip, only while no trip is under way.
func (m *Manager) Upcoming() (models.Trip, bool) {
	if _, active := m.Current(); active {
		return models.Trip{}, false
	}
	return m.first(models.TripScheduled)
}

func (m *Manager) first(status models.TripStatus) (models.Trip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.trips {
		if s.trip.Status == status {
			return s.clone().trip, true
		}
	}
	return models.Trip{}, false
}

// StartTrip moves a scheduled trip to picked_up.
func (m *Manager) StartTrip(tripID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return err
	}
	if s.trip.Status != models.TripScheduled {
		return reject(TransitionStart, string(s.trip.Status), "")
	}
	now := m.clock.Now()
	s.trip.Status = models.TripPickedUp
	s.trip.ActualPickupAt = &now
	return nil
}

// CompleteTrip moves a picked_up trip to completed. With a known passenger
// list every passenger must have left the pending state first; passengers
// still on board are dropped off.
func (m *Manager) CompleteTrip(tripID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return err
	}
	if s.trip.Status != models.TripPickedUp {
		return reject(TransitionComplete, string(s.trip.Status), "")
	}

	now := m.clock.Now()
	switch d := s.detail.(type) {
	case Known:
		for _, p := range d.Passengers {
			if p.Status == models.PassengerPending {
				return reject(TransitionComplete, string(s.trip.Status), ReasonPendingRemains)
			}
		}
		for i := range d.Passengers {
			if d.Passengers[i].Status == models.PassengerPickedUp {
				d.Passengers[i].Status = models.PassengerDroppedOff
				d.Passengers[i].DroppedOffAt = &now
			}
		}
	}
	s.trip.Status = models.TripCompleted
	s.trip.ActualDropoffAt = &now
	return nil
}

// CancelTrip moves a scheduled trip to cancelled.
func (m *Manager) CancelTrip(tripID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return err
	}
	if s.trip.Status != models.TripScheduled {
		return reject(TransitionCancel, string(s.trip.Status), "")
	}
	s.trip.Status = models.TripCancelled
	return nil
}

// Snapshot copies the full state for a later Restore.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot{trips: make([]tripState, len(m.trips))}
	for i, s := range m.trips {
		out.trips[i] = s.clone()
	}
	return out
}

// Restore replaces the state with a snapshot.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trips = make([]tripState, len(snap.trips))
	m.index = make(map[int]int, len(snap.trips))
	for i, s := range snap.trips {
		m.trips[i] = s.clone()
		m.index[s.trip.ID] = i
	}
}

// TripSnapshot is an opaque copy of one trip's state.
type TripSnapshot struct {
	state tripState
	ok    bool
}

// TripScope snapshots and restores a single trip, leaving the rest of the
// manager alone. Other trips may change while an action on this one waits
// for confirmation.
type TripScope struct {
	m      *Manager
	tripID int
}

// Scope returns the rollback target for tripID.
func (m *Manager) Scope(tripID int) TripScope {
	return TripScope{m: m, tripID: tripID}
}

func (s TripScope) Snapshot() TripSnapshot {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	i, ok := s.m.index[s.tripID]
	if !ok {
		return TripSnapshot{}
	}
	return TripSnapshot{state: s.m.trips[i].clone(), ok: true}
}

// Restore puts the trip back as it was. A trip that was unknown at snapshot
// time, or has since been dropped by a Load, is left alone.
func (s TripScope) Restore(snap TripSnapshot) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if !snap.ok {
		return
	}
	if i, ok := s.m.index[s.tripID]; ok {
		s.m.trips[i] = snap.state.clone()
	}
}

// Aggregates sums the counts of every trip.
func (m *Manager) Aggregates() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total Counts
	for _, s := range m.trips {
		total.add(countTrip(s.trip, s.detail))
	}
	return total
}

// TripCounts returns the counts of a single trip.
func (m *Manager) TripCounts(tripID int) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return Counts{}, err
	}
	return countTrip(s.trip, s.detail), nil
}

// Progress is the share of a trip's passengers that have boarded, in
// percent. Approximate trips report 0 before pickup and 100 after.
func (m *Manager) Progress(tripID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return 0, err
	}
	switch d := s.detail.(type) {
	case Known:
		if len(d.Passengers) == 0 {
			return 0, nil
		}
		boarded := 0
		for _, p := range d.Passengers {
			if p.Status == models.PassengerPickedUp || p.Status == models.PassengerDroppedOff {
				boarded++
			}
		}
		return boarded * 100 / len(d.Passengers), nil
	case Approximate:
		if s.trip.Status == models.TripPickedUp || s.trip.Status == models.TripCompleted {
			return 100, nil
		}
	}
	return 0, nil
}

func (m *Manager) lookup(tripID int) (*tripState, error) {
	i, ok := m.index[tripID]
	if !ok {
		return nil, fault.InputError{Field: "trip_id", Reason: "unknown trip"}
	}
	return &m.trips[i], nil
}

func (m *Manager) now() *time.Time {
	now := m.clock.Now()
	return &now
}
