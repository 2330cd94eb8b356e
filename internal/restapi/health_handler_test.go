package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Unavailable(t *testing.T) {
	api := &RestAPI{}

	rec := httptest.NewRecorder()
	api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Status)
	assert.NotEmpty(t, body.Detail)
}

func TestHealthHandler_ReportsSession(t *testing.T) {
	api := createTestApi(t)

	var body HealthResponse
	resp := api.call(t, http.MethodGet, "/healthz", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "none", body.Session)
	assert.Equal(t, "disabled", body.Publisher)
	assert.Zero(t, body.Tracking)

	api.loginDriver(t)
	resp = api.call(t, http.MethodGet, "/healthz", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body.Session)
}
