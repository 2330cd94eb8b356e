// Package events is the in-process subscription point views use to re-render
// when trip state, positions, availability or loading state change.
package events

import (
	"sort"
	"sync"
	"time"

	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/models"
)

type TripStateChanged struct {
	TripID int
	From   models.TripStatus
	To     models.TripStatus
	At     time.Time
}

type PositionChanged struct {
	TripID   int
	Position geo.Coordinates
	Index    int
	// ETAMinutes is meaningful only when ETAKnown is set.
	ETAMinutes int
	ETAKnown   bool
	Looping    bool
	At         time.Time
}

type AvailabilityChanged struct {
	VehicleID int
	RouteID   int
	Available int
	Capacity  int
}

type LoadingChanged struct {
	InFlight int
}

// Loading reports whether any call is still outstanding.
func (e LoadingChanged) Loading() bool { return e.InFlight > 0 }

type Failure struct {
	Op        string
	Err       error
	Retryable bool
}

type topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

func (t *topic[T]) subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.next
	t.next++
	t.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
		})
	}
}

// publish calls subscribers in subscription order, outside the lock so a
// handler may unsubscribe itself.
func (t *topic[T]) publish(v T) {
	t.mu.RLock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(T), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, t.subs[id])
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(v)
	}
}

func (t *topic[T]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Hub fans events out to subscribers synchronously. A nil *Hub accepts
// publishes and drops them.
type Hub struct {
	tripState    topic[TripStateChanged]
	position     topic[PositionChanged]
	availability topic[AvailabilityChanged]
	loading      topic[LoadingChanged]
	failure      topic[Failure]
}

func NewHub() *Hub { return &Hub{} }

// OnTripState registers fn and returns its unsubscribe function.
func (h *Hub) OnTripState(fn func(TripStateChanged)) func() { return h.tripState.subscribe(fn) }

func (h *Hub) OnPosition(fn func(PositionChanged)) func() { return h.position.subscribe(fn) }

func (h *Hub) OnAvailability(fn func(AvailabilityChanged)) func() {
	return h.availability.subscribe(fn)
}

func (h *Hub) OnLoading(fn func(LoadingChanged)) func() { return h.loading.subscribe(fn) }

func (h *Hub) OnFailure(fn func(Failure)) func() { return h.failure.subscribe(fn) }

func (h *Hub) PublishTripState(e TripStateChanged) {
	if h != nil {
		h.tripState.publish(e)
	}
}

func (h *Hub) PublishPosition(e PositionChanged) {
	if h != nil {
		h.position.publish(e)
	}
}

func (h *Hub) PublishAvailability(e AvailabilityChanged) {
	if h != nil {
		h.availability.publish(e)
	}
}

func (h *Hub) PublishLoading(e LoadingChanged) {
	if h != nil {
		h.loading.publish(e)
	}
}

func (h *Hub) PublishFailure(e Failure) {
	if h != nil {
		h.failure.publish(e)
	}
}

// Subscribers reports the number of live subscriptions across all topics.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	return h.tripState.count() + h.position.count() + h.availability.count() +
		h.loading.count() + h.failure.count()
}
