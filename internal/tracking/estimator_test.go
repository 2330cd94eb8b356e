package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/geo"
	"minibus.schoolride.org/internal/models"
)

// Five points roughly 1.1km apart heading east along the equator.
var line = []geo.Coordinates{
	{Lat: 0, Lng: 0},
	{Lat: 0, Lng: 0.01},
	{Lat: 0, Lng: 0.02},
	{Lat: 0, Lng: 0.03},
	{Lat: 0, Lng: 0.04},
}

func TestNewEstimatorRejectsEmptyPolyline(t *testing.T) {
	_, err := NewEstimator(nil)
	assert.True(t, fault.IsInput(err))

	_, err = NewEstimatorFromPolyline("")
	assert.True(t, fault.IsInput(err))
}

func TestEstimatorPinnedUntilStarted(t *testing.T) {
	e, err := NewEstimator(line)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		est := e.Tick()
		assert.Equal(t, line[0], est.Position)
		assert.Equal(t, 0, est.Index)
		assert.False(t, est.Started)
		assert.False(t, est.ETA.Known)
	}
}

func TestEstimatorAdvancesAndHolds(t *testing.T) {
	e, err := NewEstimator(line)
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)

	est := e.Estimate()
	assert.True(t, est.Started)
	assert.True(t, est.ETA.Known)
	assert.Equal(t, 9, est.ETA.Minutes)

	for i := 1; i < len(line); i++ {
		est = e.Tick()
		assert.Equal(t, i, est.Index)
		assert.Equal(t, line[i], est.Position)
	}
	assert.True(t, est.AtDestination)
	assert.Equal(t, 0, est.ETA.Minutes)

	for i := 0; i < 5; i++ {
		est = e.Tick()
		assert.Equal(t, line[len(line)-1], est.Position)
		assert.False(t, est.Looping)
	}
}

func TestEstimatorResetOnStateChange(t *testing.T) {
	e, err := NewEstimator(line)
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)
	e.Tick()
	e.Tick()

	e.SetState(models.TripCompleted)
	est := e.Estimate()
	assert.Equal(t, 0, est.Index)
	assert.False(t, est.Started)
	assert.Equal(t, models.TripCompleted, e.State())
}

func TestEstimatorDemoLoop(t *testing.T) {
	e, err := NewEstimator(line[:2], WithDemoLoop())
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)

	assert.Equal(t, 1, e.Tick().Index)
	est := e.Tick()
	assert.Equal(t, 0, est.Index)
	assert.True(t, est.Looping)
}

func TestEstimatorSpeed(t *testing.T) {
	e, err := NewEstimator(line, WithSpeedKmh(60))
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)
	// 4.45km at 60km/h.
	assert.Equal(t, 4, e.Estimate().ETA.Minutes)

	e, err = NewEstimator(line, WithSpeedKmh(-1))
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)
	assert.Equal(t, 9, e.Estimate().ETA.Minutes)
}

func TestEstimatorSinglePoint(t *testing.T) {
	e, err := NewEstimator(line[:1], WithDemoLoop())
	require.NoError(t, err)
	e.SetState(models.TripPickedUp)
	est := e.Tick()
	assert.True(t, est.AtDestination)
	assert.False(t, est.Looping)
	assert.Equal(t, 0, est.ETA.Minutes)
}

func TestEstimatorFromPolyline(t *testing.T) {
	e, err := NewEstimatorFromPolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	assert.InDelta(t, 38.5, e.Estimate().Position.Lat, 1e-9)
}
