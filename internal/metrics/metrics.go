// Package metrics provides Prometheus metrics for the minibus core.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"minibus.schoolride.org/internal/fault"
)

// Stats is a point-in-time view of the session state, sampled by the
// stats collector.
type Stats struct {
	Trips       int
	Onboard     int
	Pending     int
	Approximate bool
	Subscribers int
}

// StatsSource is implemented by whatever owns the session state.
type StatsSource interface {
	Stats() Stats
}

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Domain metrics
	GeofenceValidationsTotal *prometheus.CounterVec
	AvailabilityChecksTotal  *prometheus.CounterVec
	TripTransitionsTotal     *prometheus.CounterVec

	// Backend client metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendInFlight        prometheus.Gauge

	// Event bridge metrics
	PublishedEventsTotal *prometheus.CounterVec
	PublisherConnected   prometheus.Gauge

	// Session state, sampled
	TripsLoaded       prometheus.Gauge
	PassengersOnboard prometheus.Gauge
	PassengersPending prometheus.Gauge
	CountsApproximate prometheus.Gauge
	EventSubscribers  prometheus.Gauge

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minibus_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		GeofenceValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_geofence_validations_total",
			Help: "Geofence validations by outcome",
		}, []string{"result"}),
		AvailabilityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_availability_checks_total",
			Help: "Seat availability checks by outcome",
		}, []string{"result"}),
		TripTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_trip_transitions_total",
			Help: "Trip and passenger transitions by outcome",
		}, []string{"transition", "result"}),
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_backend_requests_total",
			Help: "Calls to the backend API by operation and outcome",
		}, []string{"op", "outcome"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minibus_backend_request_duration_seconds",
			Help:    "Backend API call latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		BackendInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_backend_in_flight",
			Help: "Backend calls that have started and not yet settled",
		}),
		PublishedEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minibus_published_events_total",
			Help: "Events forwarded to NATS by kind and outcome",
		}, []string{"kind", "result"}),
		PublisherConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_publisher_connected",
			Help: "1 while the NATS connection is up",
		}),
		TripsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_trips_loaded",
			Help: "Trips held in the session",
		}),
		PassengersOnboard: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_passengers_onboard",
			Help: "Passengers currently on board",
		}),
		PassengersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_passengers_pending",
			Help: "Passengers not yet picked up",
		}),
		CountsApproximate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_passenger_counts_approximate",
			Help: "1 when passenger counts fall back to booked seats",
		}),
		EventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minibus_event_subscribers",
			Help: "Live event subscriptions",
		}),
		logger: logger,
	}

	// Register all metrics with the custom registry
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GeofenceValidationsTotal,
		m.AvailabilityChecksTotal,
		m.TripTransitionsTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendInFlight,
		m.PublishedEventsTotal,
		m.PublisherConnected,
		m.TripsLoaded,
		m.PassengersOnboard,
		m.PassengersPending,
		m.CountsApproximate,
		m.EventSubscribers,
	)
	return m
}

// ObserveBackend records one settled backend call.
func (m *Metrics) ObserveBackend(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(op, outcome).Inc()
	m.BackendRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveTransition records a trip or passenger transition attempt.
func (m *Metrics) ObserveTransition(transition string, err error) {
	if m == nil {
		return
	}
	m.TripTransitionsTotal.WithLabelValues(transition, outcome(err)).Inc()
}

// ObserveGeofence records one geofence validation.
func (m *Metrics) ObserveGeofence(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.GeofenceValidationsTotal.WithLabelValues(result).Inc()
}

// ObserveAvailability records one seat availability check.
func (m *Metrics) ObserveAvailability(err error) {
	if m == nil {
		return
	}
	m.AvailabilityChecksTotal.WithLabelValues(outcome(err)).Inc()
}

// ObservePublish records one event forwarded to NATS.
func (m *Metrics) ObservePublish(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PublishedEventsTotal.WithLabelValues(kind, result).Inc()
}

// SetPublisherConnected tracks the NATS connection state.
func (m *Metrics) SetPublisherConnected(connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.PublisherConnected.Set(v)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case fault.IsInput(err):
		return "invalid"
	case fault.IsTransport(err):
		return "failed"
	default:
		return "rejected"
	}
}

// StartStatsCollector starts a goroutine that periodically samples the
// session state and updates the corresponding gauges.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartStatsCollector(source StatsSource, interval time.Duration) {
	if source == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.record(source.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Metrics) record(s Stats) {
	m.TripsLoaded.Set(float64(s.Trips))
	m.PassengersOnboard.Set(float64(s.Onboard))
	m.PassengersPending.Set(float64(s.Pending))
	approximate := 0.0
	if s.Approximate {
		approximate = 1
	}
	m.CountsApproximate.Set(approximate)
	m.EventSubscribers.Set(float64(s.Subscribers))
}

// Shutdown stops the stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
