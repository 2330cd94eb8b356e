package publisher

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/metrics"
	"minibus.schoolride.org/internal/models"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "42", "42"},
		{"dots and spaces", " a.b c ", "a_b_c"},
		{"wildcards", "x*>y", "x__y"},
		{"empty", "  ", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectToken(tt.in))
		})
	}
}

func TestBridgeForwardsEvents(t *testing.T) {
	conn := &fakeConn{}
	m := metrics.New()
	hub := events.NewHub()
	b := NewBridge(conn, WithSubjectPrefix("school.one"), WithMetrics(m))
	b.Attach(hub)

	at := time.Date(2024, 9, 2, 7, 30, 0, 0, time.UTC)
	hub.PublishTripState(events.TripStateChanged{TripID: 5, From: models.TripScheduled, To: models.TripPickedUp, At: at})
	hub.PublishPosition(events.PositionChanged{
		TripID: 5, Position: geo.Coordinates{Lat: -1.28, Lng: 36.82}, Index: 2, ETAMinutes: 7, ETAKnown: true, At: at,
	})
	hub.PublishPosition(events.PositionChanged{TripID: 5, At: at})

	require.Len(t, conn.msgs, 3)
	assert.Equal(t, "school_one.trips.5.state", conn.msgs[0].subject)
	assert.Equal(t, "school_one.trips.5.position", conn.msgs[1].subject)

	var state StateMessage
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &state))
	assert.Equal(t, StateMessage{TripID: 5, From: "scheduled", To: "picked_up", Timestamp: at}, state)

	var pos PositionMessage
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &pos))
	assert.Equal(t, -1.28, pos.Lat)
	assert.Equal(t, 36.82, pos.Lon)
	require.NotNil(t, pos.ETAMinutes)
	assert.Equal(t, 7, *pos.ETAMinutes)

	assert.NotContains(t, string(conn.msgs[2].data), "etaMinutes")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PublishedEventsTotal.WithLabelValues("position", "ok")))

	b.Detach()
	hub.PublishTripState(events.TripStateChanged{TripID: 5})
	assert.Len(t, conn.msgs, 3)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestBridgeCountsFailures(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	m := metrics.New()
	hub := events.NewHub()
	NewBridge(conn, WithMetrics(m)).Attach(hub)

	hub.PublishTripState(events.TripStateChanged{TripID: 1})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PublishedEventsTotal.WithLabelValues("state", "error")))
}

func TestDefaultPrefix(t *testing.T) {
	b := NewBridge(&fakeConn{}, WithSubjectPrefix(" "))
	assert.Equal(t, "minibus.trips.3.state", b.StateSubject(3))
}
