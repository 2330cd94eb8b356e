package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"minibus.schoolride.org/internal/appconf"
)

func TestIsInvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		key     string
		invalid bool
	}{
		{name: "open facade", keys: nil, key: "", invalid: false},
		{name: "missing key", keys: []string{"k1"}, key: "", invalid: true},
		{name: "known key", keys: []string{"k1", "k2"}, key: "k2", invalid: false},
		{name: "unknown key", keys: []string{"k1"}, key: "k3", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Application{Config: appconf.Config{ApiKeys: tt.keys}}
			assert.Equal(t, tt.invalid, a.IsInvalidAPIKey(tt.key))
		})
	}
}

func TestAPIKeyPrefersHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/trips?key=query", nil)
	assert.Equal(t, "query", APIKey(r))

	r.Header.Set("X-API-Key", "header")
	assert.Equal(t, "header", APIKey(r))

	a := &Application{Config: appconf.Config{ApiKeys: []string{"header"}}}
	assert.False(t, a.RequestHasInvalidAPIKey(r))
}
