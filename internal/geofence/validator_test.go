package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/fault"
)

// Endpoints on the equator about 50km apart.
var equatorFence = &Geofence{Start: "0,0", End: "0,0.44966", RadiusKm: 5}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fence    *Geofence
		accepted bool
		measured bool
		reason   string
	}{
		{name: "nil fence accepts", input: "-1.28,36.8", fence: nil, accepted: true},
		{name: "invalid candidate with nil fence", input: "200,36.8", fence: nil, reason: "invalid coordinates"},
		{name: "garbage candidate", input: "abc", fence: equatorFence, reason: "invalid coordinates"},
		{name: "midpoint", input: "0,0.22483", fence: equatorFence, accepted: true, measured: true},
		{name: "endpoint", input: "0,0", fence: equatorFence, accepted: true, measured: true},
		{
			name:     "six km off the corridor",
			input:    "0.05396,0.22483",
			fence:    equatorFence,
			measured: true,
			reason:   "location is 6.0km from the route corridor (maximum allowed: 5km)",
		},
		{name: "zero radius is unconstrained", input: "10,10", fence: &Geofence{Start: "0,0", End: "0,1"}, accepted: true},
		{name: "bad endpoint is unconstrained", input: "10,10", fence: &Geofence{Start: "x", End: "0,1", RadiusKm: 5}, accepted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.input, tt.fence)
			assert.Equal(t, tt.accepted, res.Accepted)
			assert.Equal(t, tt.measured, res.DistanceKm != nil)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestValidateDistanceIsReported(t *testing.T) {
	res := Validate("0.05396,0.22483", equatorFence)
	require.NotNil(t, res.DistanceKm)
	assert.InDelta(t, 6.0, *res.DistanceKm, 0.01)

	res = Validate("0,0.22483", equatorFence)
	require.NotNil(t, res.DistanceKm)
	assert.InDelta(t, 0, *res.DistanceKm, 1e-9)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Validate("0,0.1", equatorFence).Err())

	err := Validate("bad", equatorFence).Err()
	assert.True(t, fault.IsInput(err))

	err = Validate("0.05396,0.22483", equatorFence).Err()
	require.True(t, fault.IsPolicy(err))
	p, ok := fault.AsPolicy(err)
	require.True(t, ok)
	assert.Equal(t, "geofence", p.Op)
	assert.Contains(t, p.Measurement, "km")
	assert.False(t, fault.IsRetryable(err))
}
