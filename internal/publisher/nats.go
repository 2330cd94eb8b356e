// Package publisher forwards trip-state and position events from the hub to
// NATS so dashboards outside the process can follow a trip.
package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/metrics"
)

const DefaultSubjectPrefix = "minibus"

// Conn is the part of a NATS connection the bridge publishes through.
type Conn interface {
	Publish(subject string, data []byte) error
}

type StateMessage struct {
	TripID    int       `json:"tripId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

type PositionMessage struct {
	TripID     int       `json:"tripId"`
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Index      int       `json:"index"`
	ETAMinutes *int      `json:"etaMinutes,omitempty"`
	Looping    bool      `json:"looping,omitempty"`
}

type Option func(*Bridge)

func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) {
		if p := subjectToken(prefix); p != "_" {
			b.prefix = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// Bridge subscribes to a hub and republishes its events as JSON.
type Bridge struct {
	conn    Conn
	prefix  string
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

func NewBridge(conn Conn, opts ...Option) *Bridge {
	b := &Bridge{conn: conn, prefix: DefaultSubjectPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "nats_bridge"))
	return b
}

// Attach starts forwarding hub events. Calling it twice attaches twice.
func (b *Bridge) Attach(hub *events.Hub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubs = append(b.unsubs,
		hub.OnTripState(b.forwardState),
		hub.OnPosition(b.forwardPosition),
	)
}

// Detach stops forwarding.
func (b *Bridge) Detach() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func (b *Bridge) StateSubject(tripID int) string {
	return fmt.Sprintf("%s.trips.%s.state", b.prefix, subjectToken(strconv.Itoa(tripID)))
}

func (b *Bridge) PositionSubject(tripID int) string {
	return fmt.Sprintf("%s.trips.%s.position", b.prefix, subjectToken(strconv.Itoa(tripID)))
}

func (b *Bridge) forwardState(e events.TripStateChanged) {
	b.publish("state", b.StateSubject(e.TripID), StateMessage{
		TripID:    e.TripID,
		From:      string(e.From),
		To:        string(e.To),
		Timestamp: e.At.UTC(),
	})
}

func (b *Bridge) forwardPosition(e events.PositionChanged) {
	msg := PositionMessage{
		TripID:    e.TripID,
		Timestamp: e.At.UTC(),
		Lat:       e.Position.Lat,
		Lon:       e.Position.Lng,
		Index:     e.Index,
		Looping:   e.Looping,
	}
	if e.ETAKnown {
		eta := e.ETAMinutes
		msg.ETAMinutes = &eta
	}
	b.publish("position", b.PositionSubject(e.TripID), msg)
}

func (b *Bridge) publish(kind, subject string, msg any) {
	data, err := json.Marshal(msg)
	if err == nil {
		err = b.conn.Publish(subject, data)
	}
	b.metrics.ObservePublish(kind, err)
	if err != nil {
		logging.LogError(b.logger, "nats publish failed", err, slog.String("subject", subject))
		return
	}
	b.logger.Debug("nats publish", slog.String("subject", subject))
}

// NATSConn is a NATS connection that reports its state to metrics.
type NATSConn struct {
	nc *nats.Conn
}

// Connect dials url and keeps the connected gauge in step with the
// connection's lifecycle.
func Connect(url string, m *metrics.Metrics, logger *slog.Logger) (*NATSConn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("minibus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.SetPublisherConnected(false)
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			m.SetPublisherConnected(true)
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.SetPublisherConnected(false)
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	m.SetPublisherConnected(true)
	return &NATSConn{nc: nc}, nil
}

func (c *NATSConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *NATSConn) Connected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// Close drains pending messages before closing.
func (c *NATSConn) Close() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Drain()
	c.nc.Close()
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, wildcards or dots.
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
