package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeIDs(matches []Match) []int {
	ids := make([]int, len(matches))
	for i, m := range matches {
		ids[i] = m.RouteID
	}
	return ids
}

func TestCorridorIndexRoutesFor(t *testing.T) {
	idx := NewCorridorIndex()
	idx.Insert(1, equatorFence)
	idx.Insert(2, &Geofence{Start: "0.03,0", End: "0.03,0.44966", RadiusKm: 5})
	idx.Insert(3, &Geofence{Start: "10,10", End: "10,11", RadiusKm: 5})
	idx.Insert(4, nil)
	assert.Equal(t, 4, idx.Len())

	matches := idx.RoutesFor("0.025,0.2")
	assert.Equal(t, []int{2, 1, 4}, routeIDs(matches))
	require.NotNil(t, matches[0].DistanceKm)
	assert.Less(t, *matches[0].DistanceKm, *matches[1].DistanceKm)
	assert.Nil(t, matches[2].DistanceKm)

	assert.Equal(t, []int{3, 4}, routeIDs(idx.RoutesFor("10,10.5")))
	assert.Nil(t, idx.RoutesFor("not a point"))
}

func TestCorridorIndexAgreesWithValidate(t *testing.T) {
	idx := NewCorridorIndex()
	idx.Insert(1, equatorFence)

	for _, candidate := range []string{"0,0.22483", "0.05396,0.22483", "0.04,0.5", "-0.044,-0.01", "0,0.49"} {
		want := Validate(candidate, equatorFence).Accepted
		got := len(idx.RoutesFor(candidate)) == 1
		assert.Equal(t, want, got, candidate)
	}
}

func TestCorridorIndexReplaceAndRemove(t *testing.T) {
	idx := NewCorridorIndex()
	idx.Insert(1, equatorFence)
	idx.Insert(2, &Geofence{Start: "10,10", End: "10,11", RadiusKm: 5})

	idx.Insert(1, &Geofence{Start: "20,20", End: "20,21", RadiusKm: 5})
	assert.Empty(t, idx.RoutesFor("0,0.2"))
	assert.Equal(t, []int{1}, routeIDs(idx.RoutesFor("20,20.5")))

	idx.Remove(2)
	assert.Empty(t, idx.RoutesFor("10,10.5"))
	assert.Equal(t, 1, idx.Len())

	idx.Insert(1, nil)
	assert.Equal(t, []int{1}, routeIDs(idx.RoutesFor("-45,100")))

	idx.Remove(1)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.RoutesFor("-45,100"))
}
