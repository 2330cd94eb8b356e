package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/fault"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestNormalizeTripStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want TripStatus
	}{
		{"scheduled", TripScheduled},
		{"picked_up", TripPickedUp},
		{"picked-up", TripPickedUp},
		{"Complete", TripCompleted},
		{"completed", TripCompleted},
		{"canceled", TripCancelled},
		{" cancelled ", TripCancelled},
		{"", TripScheduled},
		{"bogus", TripScheduled},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTripStatus(tt.raw))
		})
	}
}

func TestNormalizeOthers(t *testing.T) {
	assert.Equal(t, BookingActive, NormalizeBookingStatus("Active"))
	assert.Equal(t, BookingCancelled, NormalizeBookingStatus("canceled"))
	assert.Equal(t, ServiceTimeEvening, NormalizeServiceTime("Evening"))
	assert.Equal(t, ServiceTimeMorning, NormalizeServiceTime("noon"))
	assert.Equal(t, ServiceMorning, NormalizeServiceType("morning"))
	assert.Equal(t, ServiceBoth, NormalizeServiceType(""))
	assert.Equal(t, PassengerPickedUp, NormalizePassengerStatus("picked_up"))
	assert.Equal(t, PassengerDroppedOff, NormalizePassengerStatus("dropped-off"))
	assert.Equal(t, PassengerPending, NormalizePassengerStatus("?"))
}

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingActive.CanTransitionTo(BookingCancelled))
	assert.True(t, BookingActive.CanTransitionTo(BookingCompleted))
	assert.False(t, BookingCancelled.CanTransitionTo(BookingActive))
	assert.False(t, BookingCompleted.CanTransitionTo(BookingCancelled))
	assert.False(t, BookingActive.CanTransitionTo(BookingActive))
}

func TestServiceTypeCovers(t *testing.T) {
	assert.True(t, ServiceBoth.Covers(ServiceTimeEvening))
	assert.True(t, ServiceMorning.Covers(ServiceTimeMorning))
	assert.False(t, ServiceMorning.Covers(ServiceTimeEvening))
	assert.False(t, ServiceType("x").Covers(ServiceTimeMorning))
}

func TestWeekdays(t *testing.T) {
	w, err := ParseWeekdays("5, 1,3,0")
	require.NoError(t, err)
	assert.Equal(t, "1,3,5,7", w.String())
	assert.Equal(t, []int{1, 3, 5, 7}, w.Days())

	monday := date(t, "2024-09-02")
	tuesday := date(t, "2024-09-03")
	assert.True(t, w.Contains(monday))
	assert.False(t, w.Contains(tuesday))
	assert.True(t, Weekdays(0).Contains(tuesday))

	_, err = ParseWeekdays("1,8")
	assert.Error(t, err)
	_, err = ParseWeekdays("mon")
	assert.Error(t, err)

	assert.Equal(t, w, NewWeekdays(1, 3, 5, 0, 9))
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 7, ISOWeekday(date(t, "2024-09-01")))
	assert.Equal(t, 1, ISOWeekday(date(t, "2024-09-02")))
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("EAT", 3*3600)
	late := time.Date(2024, 9, 2, 23, 30, 0, 0, loc)
	assert.Equal(t, date(t, "2024-09-02"), DateOf(late))
	assert.Equal(t, "2024-09-02", FormatDate(late))

	_, err := ParseDate("02/09/2024")
	assert.Error(t, err)
}

func TestBookingCoversAndValidate(t *testing.T) {
	b := Booking{
		StartDate:   date(t, "2024-09-02"),
		EndDate:     date(t, "2024-09-06"),
		ServiceType: ServiceBoth,
		SeatsBooked: 2,
		Status:      BookingActive,
	}
	assert.True(t, b.Covers(date(t, "2024-09-02")))
	assert.True(t, b.Covers(date(t, "2024-09-06")))
	assert.False(t, b.Covers(date(t, "2024-09-07")))
	assert.True(t, b.Active())

	assert.NoError(t, b.Validate(14))

	tests := []struct {
		name   string
		mutate func(*Booking)
		cap    int
	}{
		{"inverted range", func(b *Booking) { b.EndDate = date(t, "2024-09-01") }, 14},
		{"missing start", func(b *Booking) { b.StartDate = time.Time{} }, 14},
		{"zero seats", func(b *Booking) { b.SeatsBooked = 0 }, 14},
		{"over capacity", func(b *Booking) { b.SeatsBooked = 15 }, 14},
		{"bad service type", func(b *Booking) { b.ServiceType = "noon" }, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := b
			tt.mutate(&c)
			err := c.Validate(tt.cap)
			require.Error(t, err)
			assert.True(t, fault.IsInput(err))
		})
	}
}

func TestRouteGeofence(t *testing.T) {
	start, end := " -1.28,36.8 ", "-1.3,36.9"
	r := Route{ID: 1, StartingPointGPS: &start, EndingPointGPS: &end}
	fence := r.Geofence()
	require.NotNil(t, fence)
	assert.Equal(t, "-1.28,36.8", fence.Start)
	assert.Equal(t, DefaultRouteRadiusKm, fence.RadiusKm)

	radius := 2.5
	r.RadiusKm = &radius
	assert.Equal(t, 2.5, r.Geofence().RadiusKm)

	r.EndingPointGPS = nil
	assert.Nil(t, r.Geofence())
}

func TestVehicleValidate(t *testing.T) {
	assert.NoError(t, Vehicle{Capacity: 1}.Validate())
	assert.True(t, fault.IsInput(Vehicle{Capacity: 0}.Validate()))
}
