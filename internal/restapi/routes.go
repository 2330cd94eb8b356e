package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minibus.schoolride.org/internal/app"
	"minibus.schoolride.org/internal/session"
)

// RestAPI is the local HTTP facade over one Application.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second, nil, app.Clock),
	}
}

func (api *RestAPI) logger() *slog.Logger {
	if api.Application == nil || api.Logger == nil {
		return slog.Default()
	}
	return api.Logger
}

// SetRoutes registers every endpoint on mux. Everything under /api is rate
// limited and needs a valid key; trip endpoints also need a driver session.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	guarded := func(h http.Handler) http.Handler {
		return api.rateLimiter.Handler()(api.requireAPIKey(h))
	}
	public := func(h http.HandlerFunc) http.Handler {
		return guarded(h)
	}
	driver := func(h http.HandlerFunc) http.Handler {
		return guarded(api.requireRole(h, session.RoleDriver))
	}
	cached := func(seconds int, h http.Handler) http.Handler {
		return CacheControlMiddleware(seconds, h)
	}

	mux.Handle("POST /api/session", public(api.loginHandler))
	mux.Handle("DELETE /api/session", public(api.logoutHandler))
	mux.Handle("GET /api/session", public(api.sessionHandler))

	mux.Handle("GET /api/geofence/validate", cached(60, public(api.validateLocationHandler)))
	mux.Handle("GET /api/routes/for-location", cached(60, public(api.routesForLocationHandler)))
	mux.Handle("POST /api/availability", cached(0, public(api.availabilityHandler)))
	mux.Handle("POST /api/bookings", public(api.createBookingHandler))
	mux.Handle("DELETE /api/bookings/{id}", public(api.cancelBookingHandler))

	mux.Handle("GET /api/trips", cached(0, driver(api.tripsHandler)))
	mux.Handle("POST /api/trips/refresh", driver(api.reloadTripsHandler))
	mux.Handle("POST /api/trips/{id}/start", driver(api.startTripHandler))
	mux.Handle("POST /api/trips/{id}/complete", driver(api.completeTripHandler))
	mux.Handle("POST /api/trips/{id}/passengers/mark-pending", driver(api.markPendingHandler))
	mux.Handle("POST /api/trips/{id}/passengers/{pid}", driver(api.markPassengerHandler))
	mux.Handle("POST /api/trips/{id}/track", driver(api.trackTripHandler))
	mux.Handle("DELETE /api/trips/{id}/track", driver(api.untrackTripHandler))
	mux.Handle("GET /api/trips/{id}/position", cached(0, driver(api.positionHandler)))
}

// Handler builds the full middleware chain around a fresh mux. The metrics
// middleware reads r.Pattern, so only same-request wrappers sit between it
// and the mux.
func (api *RestAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	var h http.Handler = gzhttp.GzipHandler(mux)
	h = MetricsHandler(api.Metrics)(h)
	h = NewRequestLoggingMiddleware(api.logger())(h)
	return RequestIDMiddleware(h)
}

// Shutdown stops the rate limiter's cleanup goroutine.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *RestAPI) requireRole(next http.Handler, role session.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := api.Session.Current()
		if err != nil {
			api.sendFault(w, r, err)
			return
		}
		if info.Role != role {
			api.sendError(w, r, http.StatusForbidden, ErrorResponse{
				Error: "this action needs a " + string(role) + " session",
				Kind:  "auth",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
