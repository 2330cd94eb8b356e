package app

import (
	"context"
	"log/slog"

	"minibus.schoolride.org/internal/appconf"
	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/booking"
	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/driver"
	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/metrics"
	"minibus.schoolride.org/internal/publisher"
	"minibus.schoolride.org/internal/session"
	"minibus.schoolride.org/internal/tracking"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware. One Application is one logged-in session.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Hub     *events.Hub
	Session *session.Context
	Backend *backend.Client
	Booking *booking.Service
	Driver  *driver.Console
	Tracker *tracking.Tracker
	Windows tracking.Windows

	// Bridge is nil unless a NATS URL is configured.
	Bridge *publisher.Bridge
	NATS   *publisher.NATSConn

	// BaseContext outlives requests; background tasks started on behalf
	// of a request run under it.
	BaseContext context.Context

	detachTracker func()
}

// Stats implements metrics.StatsSource.
func (app *Application) Stats() metrics.Stats {
	s := metrics.Stats{Subscribers: app.Hub.Subscribers()}
	if app.Driver == nil {
		return s
	}
	mgr := app.Driver.Trips()
	counts := mgr.Aggregates()
	s.Trips = len(mgr.Trips())
	s.Onboard = counts.Onboard
	s.Pending = counts.Pending
	s.Approximate = counts.Approximate
	return s
}

// Login authenticates against the backend and starts the session. A driver
// gets the assigned vehicle resolved and today's trips loaded.
func (app *Application) Login(ctx context.Context, creds backend.Credentials) (session.Info, error) {
	res, err := app.Backend.Login(ctx, creds)
	if err != nil {
		return session.Info{}, err
	}

	info := session.Info{UserID: res.UserID, Name: res.Name, VehicleID: res.VehicleID}
	if role, ok := session.ParseRole(res.Role); ok {
		info.Role = role
	} else if role, ok := session.RoleFromID(creds.RoleID); ok {
		info.Role = role
	}
	info, err = app.Session.Init(res.Token, info)
	if err != nil {
		return session.Info{}, err
	}

	if info.Role == session.RoleDriver {
		if info.VehicleID == 0 {
			v, err := app.Backend.VehicleForDriver(ctx, info.UserID)
			if err != nil {
				return info, err
			}
			info.VehicleID = v.ID
			if err := app.Session.SetVehicle(v.ID); err != nil {
				return info, err
			}
		}
		if err := app.Driver.Load(ctx, info.VehicleID); err != nil {
			return info, err
		}
	}

	logging.LogOperation(app.Logger, "session_started",
		slog.Int("user_id", info.UserID),
		slog.String("role", string(info.Role)))
	return info, nil
}

// Logout stops tracking, tells the backend and clears the session along
// with the driver's loaded trips. Local state is cleared even when the
// backend call fails.
func (app *Application) Logout(ctx context.Context) error {
	app.Tracker.Stop()
	err := app.Backend.Logout(ctx)
	app.Session.Clear()
	app.Driver.Reset()
	if err != nil {
		logging.LogError(app.Logger, "backend logout failed", err)
	}
	return err
}

// Shutdown stops background work and closes outbound connections.
func (app *Application) Shutdown() {
	if app.detachTracker != nil {
		app.detachTracker()
	}
	app.Tracker.Stop()
	if app.Bridge != nil {
		app.Bridge.Detach()
	}
	if app.NATS != nil {
		logging.SafeCloseWithLogging(app.NATS, app.Logger, "nats_connection")
	}
	if app.Metrics != nil {
		app.Metrics.Shutdown()
	}
}
