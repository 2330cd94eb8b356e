package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/app"
	"minibus.schoolride.org/internal/appconf"
	"minibus.schoolride.org/internal/clock"
)

// testNow is a Monday morning, before the default cutoff.
var testNow = time.Date(2024, 9, 2, 7, 30, 0, 0, time.UTC)

// fakeSchool is an in-memory school transport backend.
//
// Route 1 runs along the equator from 0,0 to 0,0.44966 with a 5 km radius
// and is served by vehicle 4 (capacity 4). Route 2 has no corridor and is
// served by vehicle 9. Driver 2 drives vehicle 4, whose morning run has
// trip 1 (two pending passengers) and trip 2 (seat count only).
type fakeSchool struct {
	t *testing.T

	mu         sync.Mutex
	trips      map[int]map[string]any
	failMarks  bool
	marks      []string
	created    []map[string]any
	cancelled  []string
	loggedOut  bool
	authHeader string
}

func newFakeSchool(t *testing.T) (*fakeSchool, *httptest.Server) {
	t.Helper()
	f := &fakeSchool{
		t: t,
		trips: map[int]map[string]any{
			1: {
				"trip_id": 1, "booking_id": 7, "trip_date": "2024-09-02", "service_time": "morning",
				"status": "scheduled", "seats_booked": 2, "child_name": "Amani",
				"pickup_location": "-1.2921,36.8219", "dropoff_location": "-1.3,36.8",
			},
			2: {
				"trip_id": 2, "booking_id": 8, "trip_date": "2024-09-02", "service_time": "morning",
				"status": "scheduled", "seats_booked": 3,
				"pickup_location": "Gate", "dropoff_location": "Academy",
			},
			3: {
				"trip_id": 3, "booking_id": 7, "trip_date": "2024-09-02", "service_time": "evening",
				"status": "scheduled", "seats_booked": 2,
				"pickup_location": "-1.2921,36.8219", "dropoff_location": "-1.3,36.8",
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", f.login)
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loggedOut = true
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("GET /api/trips/today", f.tripsToday)
	mux.HandleFunc("GET /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.writeTrip(w, r.PathValue("id"), "")
	})
	mux.HandleFunc("PATCH /api/trips/{id}/pickup", func(w http.ResponseWriter, r *http.Request) {
		f.writeTrip(w, r.PathValue("id"), "picked_up")
	})
	mux.HandleFunc("PATCH /api/trips/{id}/dropoff", func(w http.ResponseWriter, r *http.Request) {
		f.writeTrip(w, r.PathValue("id"), "completed")
	})
	mux.HandleFunc("PATCH /api/trips/{id}/passengers/{pid}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failMarks {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try later"})
			return
		}
		f.marks = append(f.marks, r.PathValue("id")+"/"+r.PathValue("pid"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/routes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"routes": []any{routeOne(), routeTwo()}})
	})
	mux.HandleFunc("GET /api/routes/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "1":
			writeJSON(w, http.StatusOK, routeOne())
		case "2":
			writeJSON(w, http.StatusOK, routeTwo())
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Route not found"})
		}
	})
	mux.HandleFunc("GET /api/vehicles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 4, "route_id": 1, "license_plate": "KDA 123A", "capacity": 4},
			{"id": 9, "route_id": 2, "license_plate": "KDB 456B", "capacity": 10},
		})
	})
	mux.HandleFunc("GET /api/bookings", func(w http.ResponseWriter, r *http.Request) {
		if routeID := r.URL.Query().Get("route_id"); routeID != "" && routeID != "1" {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{
				"id": 11, "user_id": 3, "route_id": 1, "start_date": "2024-09-02", "end_date": "2024-09-06",
				"days_of_week": "1,2,3,4,5", "service_type": "both", "seats_booked": 3, "status": "active",
			},
			{
				"id": 12, "user_id": 3, "route_id": 1, "start_date": "2024-09-02", "end_date": "2024-09-06",
				"days_of_week": "1,2,3,4,5", "service_type": "both", "seats_booked": 1, "status": "cancelled",
			},
		})
	})
	mux.HandleFunc("POST /api/bookings", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.created = append(f.created, body)
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()
		body["id"] = 20
		writeJSON(w, http.StatusCreated, body)
	})
	mux.HandleFunc("PATCH /api/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancelled = append(f.cancelled, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func routeOne() map[string]any {
	return map[string]any{
		"id": 1, "name": "Equator Line",
		"starting_point_gps": "0,0", "ending_point_gps": "0,0.44966", "route_radius_km": 5,
	}
}

func routeTwo() map[string]any {
	return map[string]any{"id": 2, "route_name": "Hill Loop"}
}

func (f *fakeSchool) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	if body.Password != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	if body.Email == "parent@school.test" {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-parent",
			"user":         map[string]any{"id": 3, "name": "Wanjiru", "role": "parent"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "tok-driver",
		"user":         map[string]any{"id": 2, "name": "Kip", "role": "driver"},
		"vehicle_id":   4,
	})
}

func (f *fakeSchool) tripsToday(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := r.URL.Query().Get("service_time")
	var out []map[string]any
	for id := 1; id <= 3; id++ {
		trip := f.trips[id]
		if trip["service_time"] != st {
			continue
		}
		rec := make(map[string]any, len(trip)+1)
		for k, v := range trip {
			rec[k] = v
		}
		if id == 1 {
			rec["passengers"] = []map[string]any{
				{"id": 5, "name": "Amani", "status": "pending"},
				{"id": 6, "name": "Baraka", "status": "pending"},
			}
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": "2024-09-02", "trips": out})
}

func (f *fakeSchool) writeTrip(w http.ResponseWriter, rawID, status string) {
	id, _ := strconv.Atoi(rawID)
	f.mu.Lock()
	defer f.mu.Unlock()
	trip, ok := f.trips[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Trip not found"})
		return
	}
	if status != "" {
		trip["status"] = status
	}
	writeJSON(w, http.StatusOK, trip)
}

func (f *fakeSchool) setFailMarks(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMarks = v
}

func (f *fakeSchool) markCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marks...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testAPI struct {
	*RestAPI
	school *fakeSchool
	clock  *clock.MockClock
	server *httptest.Server
}

// createTestApi serves the full middleware chain in front of an
// Application wired to a fake backend.
func createTestApi(t *testing.T, configure ...func(*appconf.Config)) *testAPI {
	t.Helper()
	school, backendSrv := newFakeSchool(t)

	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.BackendURL = backendSrv.URL + "/api"
	for _, c := range configure {
		c(&cfg)
	}

	clk := clock.NewMockClock(testNow)
	ctx, cancel := context.WithCancel(context.Background())
	application, err := app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), clk)
	require.NoError(t, err)

	api := NewRestAPI(application)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		api.Shutdown()
		application.Shutdown()
		cancel()
	})
	return &testAPI{RestAPI: api, school: school, clock: clk, server: srv}
}

// call sends a JSON request to the facade and decodes a JSON reply into out
// when out is non-nil.
func (ta *testAPI) call(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (ta *testAPI) loginDriver(t *testing.T) {
	t.Helper()
	resp := ta.call(t, http.MethodPost, "/api/session",
		map[string]any{"email": "kip@school.test", "password": "secret"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (ta *testAPI) loginParent(t *testing.T) {
	t.Helper()
	resp := ta.call(t, http.MethodPost, "/api/session",
		map[string]any{"email": "parent@school.test", "password": "secret"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
