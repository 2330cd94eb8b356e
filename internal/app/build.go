package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"minibus.schoolride.org/internal/appconf"
	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/booking"
	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/driver"
	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/metrics"
	"minibus.schoolride.org/internal/publisher"
	"minibus.schoolride.org/internal/session"
	"minibus.schoolride.org/internal/tracking"
	"minibus.schoolride.org/internal/trips"
)

const statsInterval = 15 * time.Second

// New wires every component for one session. ctx bounds the background
// tasks; cancelling it stops them. A NATS bridge is attached only when
// cfg.NATSURL is set.
func New(ctx context.Context, cfg appconf.Config, logger *slog.Logger, clk clock.Clock) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	m := metrics.NewWithLogger(logger)
	hub := events.NewHub()
	sess := session.New(clk)

	client, err := backend.New(backend.Config{
		BaseURL:           cfg.BackendURL,
		Timeout:           cfg.BackendTimeout,
		RequestsPerSecond: cfg.BackendRPS,
		CacheTTL:          cfg.CacheTTL,
	},
		backend.WithAuthorizer(sess),
		backend.WithHub(hub),
		backend.WithMetrics(m),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	console := driver.NewConsole(client, trips.NewManager(clk), hub, clk,
		driver.WithMetrics(m), driver.WithLogger(logger))

	estimatorOpts := []tracking.EstimatorOption{tracking.WithSpeedKmh(cfg.SpeedKmh)}
	if cfg.DemoLoop {
		estimatorOpts = append(estimatorOpts, tracking.WithDemoLoop())
	}

	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clk,
		Metrics: m,
		Hub:     hub,
		Session: sess,
		Backend: client,
		Booking: booking.NewService(client, hub,
			booking.WithMetrics(m), booking.WithLogger(logger)),
		Driver: console,
		Tracker: tracking.NewTracker(client, hub, clk,
			tracking.WithIntervals(cfg.RefreshInterval, cfg.TickInterval),
			tracking.WithEstimatorOptions(estimatorOpts...),
			tracking.WithTripStore(console),
			tracking.WithLogger(logger)),
		Windows:     tracking.Windows{MorningCutoffHour: cfg.MorningCutoffHour},
		BaseContext: ctx,
	}
	app.detachTracker = app.Tracker.Attach(hub)

	if cfg.NATSURL != "" {
		conn, err := publisher.Connect(cfg.NATSURL, m, logger)
		if err != nil {
			return nil, err
		}
		app.NATS = conn
		app.Bridge = publisher.NewBridge(conn,
			publisher.WithSubjectPrefix(cfg.NATSSubjectPrefix),
			publisher.WithMetrics(m),
			publisher.WithLogger(logger))
		app.Bridge.Attach(hub)
	}

	m.StartStatsCollector(app, statsInterval)
	return app, nil
}
