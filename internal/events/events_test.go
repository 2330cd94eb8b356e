package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"minibus.schoolride.org/internal/models"
)

func TestHubDeliversInSubscriptionOrder(t *testing.T) {
	h := NewHub()
	var got []string
	h.OnTripState(func(e TripStateChanged) { got = append(got, "a:"+string(e.To)) })
	h.OnTripState(func(e TripStateChanged) { got = append(got, "b:"+string(e.To)) })

	h.PublishTripState(TripStateChanged{TripID: 1, From: models.TripScheduled, To: models.TripPickedUp})
	assert.Equal(t, []string{"a:picked_up", "b:picked_up"}, got)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	calls := 0
	unsubscribe := h.OnLoading(func(LoadingChanged) { calls++ })
	assert.Equal(t, 1, h.Subscribers())

	h.PublishLoading(LoadingChanged{InFlight: 1})
	unsubscribe()
	unsubscribe()
	h.PublishLoading(LoadingChanged{InFlight: 0})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, h.Subscribers())
}

func TestHubHandlerMayUnsubscribeItself(t *testing.T) {
	h := NewHub()
	calls := 0
	var unsubscribe func()
	unsubscribe = h.OnFailure(func(Failure) {
		calls++
		unsubscribe()
	})
	h.PublishFailure(Failure{Op: "x", Err: errors.New("boom")})
	h.PublishFailure(Failure{Op: "x", Err: errors.New("boom")})
	assert.Equal(t, 1, calls)
}

func TestHubTopicsAreIndependent(t *testing.T) {
	h := NewHub()
	var availability []AvailabilityChanged
	h.OnAvailability(func(e AvailabilityChanged) { availability = append(availability, e) })
	h.PublishPosition(PositionChanged{TripID: 1})
	h.PublishAvailability(AvailabilityChanged{VehicleID: 2, Available: 3, Capacity: 14})

	assert.Equal(t, []AvailabilityChanged{{VehicleID: 2, Available: 3, Capacity: 14}}, availability)
}

func TestNilHubDropsEvents(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() {
		h.PublishTripState(TripStateChanged{})
		h.PublishLoading(LoadingChanged{})
	})
	assert.Zero(t, h.Subscribers())
}

func TestHubConcurrentPublish(t *testing.T) {
	h := NewHub()
	var mu sync.Mutex
	total := 0
	h.OnPosition(func(PositionChanged) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.PublishPosition(PositionChanged{TripID: j})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, total)
	assert.True(t, LoadingChanged{InFlight: 2}.Loading())
}
