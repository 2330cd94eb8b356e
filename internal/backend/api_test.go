package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/models"
)

func TestListRoutesIsCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"routes": []map[string]any{
			{"id": 1, "name": "Route A", "starting_point_gps": "-1.28,36.8", "ending_point_gps": "-1.3,36.9", "route_radius_km": 3},
			{"id": 2, "route_name": "Route B"},
		}})
	}))

	routes, err := c.ListRoutes(context.Background())
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "Route A", routes[0].Name)
	assert.Equal(t, 3.0, routes[0].Radius())
	assert.NotNil(t, routes[0].Geofence())
	assert.Equal(t, "Route B", routes[1].Name)
	assert.Equal(t, models.DefaultRouteRadiusKm, routes[1].Radius())
	assert.Nil(t, routes[1].Geofence())

	routes[0].Name = "mutated"
	again, err := c.ListRoutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Route A", again[0].Name)
	assert.Equal(t, int32(1), calls.Load())

	c.FlushCache()
	_, err = c.ListRoutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVehicles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vehicles/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 4, "route_id": 1, "license_plate": "KDA 123A", "capacity": 14})
	})
	mux.HandleFunc("GET /api/vehicles", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "9" {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 4, "capacity": 14}})
	})
	srvClient := newTestClient(t, mux)

	v, err := srvClient.GetVehicle(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "KDA 123A", v.LicensePlate)
	assert.Equal(t, 14, v.Capacity)

	v, err = srvClient.VehicleForDriver(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, v.ID)

	_, err = srvClient.VehicleForDriver(context.Background(), 9)
	assert.Error(t, err)
}

func TestLocations(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pickup_locations", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Gate", "route_id": 2, "gps_coordinates": " -1.2,36.8 "}})
	})
	mux.HandleFunc("GET /api/school-locations/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"school_locations": []map[string]any{{"id": 5, "name": "Academy", "gps": "-1.3,36.7"}}})
	})
	c := newTestClient(t, mux)

	pickups, err := c.ListPickupLocations(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "route_id=2", gotQuery)
	require.Len(t, pickups, 1)
	assert.Equal(t, "-1.2,36.8", pickups[0].GPS)

	schools, err := c.ListSchoolLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "-1.3,36.7", schools[0].GPS)
}

func TestBookingsRoundTrip(t *testing.T) {
	var created map[string]any
	var idempotencyKey string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bookings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{
			"id": 1, "user_id": 3, "route_id": 2, "start_date": "2024-09-02", "end_date": "2024-09-06",
			"days_of_week": "1,2,3,4,5", "service_type": "both", "seats_booked": 2, "status": "Active",
		}})
	})
	mux.HandleFunc("POST /api/bookings", func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		created["id"] = 10
		created["status"] = "active"
		writeJSON(w, http.StatusCreated, created)
	})
	mux.HandleFunc("PATCH /api/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cancelled", body["status"])
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	bookings, err := c.ListBookings(context.Background(), BookingFilter{UserID: 3})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingActive, bookings[0].Status)
	assert.Equal(t, "1,2,3,4,5", bookings[0].DaysOfWeek.String())
	assert.Equal(t, models.ServiceBoth, bookings[0].ServiceType)

	start, _ := models.ParseDate("2024-09-09")
	end, _ := models.ParseDate("2024-09-13")
	b, err := c.CreateBooking(context.Background(), models.Booking{
		UserID: 3, RouteID: 2, StartDate: start, EndDate: end,
		DaysOfWeek: models.NewWeekdays(1, 3), ServiceType: models.ServiceMorning, SeatsBooked: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, b.ID)
	assert.Equal(t, "2024-09-09", created["start_date"])
	assert.Equal(t, "1,3", created["days_of_week"])
	assert.Len(t, idempotencyKey, 36)

	require.NoError(t, c.CancelBooking(context.Background(), 10))
}

func TestTripsToday(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]any{
			"date": "2024-09-02",
			"trips": []map[string]any{
				{
					"trip_id": 1, "booking_id": 7, "trip_date": "2024-09-02", "service_time": "morning",
					"status": "picked-up", "seats_booked": 2, "pickup_location": "Gate", "dropoff_location": nil,
					"child_name": "Amani", "actual_pickup_time": "2024-09-02T07:01:02.123456",
				},
				{
					"trip_id": 2, "trip_date": "2024-09-02", "status": "canceled", "seats_booked": 1,
					"passengers": []map[string]any{{"id": 5, "name": "Baraka", "status": "picked_up"}},
				},
			},
		})
	}))

	recs, err := c.TripsToday(context.Background(), 4, models.ServiceTimeMorning)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "vehicle_id=4")
	assert.Contains(t, gotQuery, "service_time=morning")
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, models.TripPickedUp, first.Trip.Status)
	assert.Equal(t, 4, first.Trip.VehicleID)
	assert.Equal(t, "", first.Trip.DropoffLocation)
	require.NotNil(t, first.Trip.ActualPickupAt)
	assert.Equal(t, time.Date(2024, 9, 2, 7, 1, 2, 123456000, time.UTC), *first.Trip.ActualPickupAt)
	assert.Nil(t, first.Passengers)

	second := recs[1]
	assert.Equal(t, models.TripCancelled, second.Trip.Status)
	assert.Equal(t, models.ServiceTimeMorning, second.Trip.ServiceTime)
	require.Len(t, second.Passengers, 1)
	assert.Equal(t, models.PassengerPickedUp, second.Passengers[0].Status)

	_, err = c.TripsToday(context.Background(), 0, models.ServiceTimeMorning)
	assert.Error(t, err)
}

func TestTripPatches(t *testing.T) {
	var notes string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/trips/{id}/pickup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		notes = body["driver_notes"]
		writeJSON(w, http.StatusOK, map[string]any{"trip_id": 3, "status": "picked_up", "message": "Child marked as picked up"})
	})
	mux.HandleFunc("PATCH /api/trips/{id}/dropoff", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"trip_id": 3, "status": "completed"})
	})
	mux.HandleFunc("GET /api/trips/{id}/passengers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"passengers": []map[string]any{{"id": 1, "status": "pending"}}})
	})
	mux.HandleFunc("PATCH /api/trips/{id}/passengers/{pid}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8", r.PathValue("pid"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	trip, err := c.PickupTrip(context.Background(), 3, "late")
	require.NoError(t, err)
	assert.Equal(t, models.TripPickedUp, trip.Status)
	assert.Equal(t, "late", notes)

	trip, err = c.DropoffTrip(context.Background(), 3, "")
	require.NoError(t, err)
	assert.Equal(t, models.TripCompleted, trip.Status)

	ps, err := c.ListPassengers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, models.PassengerPending, ps[0].Status)

	require.NoError(t, c.MarkPassenger(context.Background(), 3, 8, models.PassengerPickedUp))
}

func TestLoginAndLogout(t *testing.T) {
	var loggedOut bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"user":         map[string]any{"id": 2, "name": "Kip", "role": "driver"},
			"vehicle_id":   4,
		})
	})
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		loggedOut = true
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	c := newTestClient(t, mux)

	res, err := c.Login(context.Background(), Credentials{Email: "k@x", Password: "secret", RoleID: 2})
	require.NoError(t, err)
	assert.Equal(t, LoginResult{Token: "tok", UserID: 2, Name: "Kip", Role: "driver", VehicleID: 4}, res)

	_, err = c.Login(context.Background(), Credentials{Email: "k@x", Password: "wrong"})
	assert.ErrorContains(t, err, "Invalid credentials")

	require.NoError(t, c.Logout(context.Background()))
	assert.True(t, loggedOut)
}
