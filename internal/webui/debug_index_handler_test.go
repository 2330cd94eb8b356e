package webui

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibus.schoolride.org/internal/app"
	"minibus.schoolride.org/internal/appconf"
	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/session"
)

func newDebugUI(t *testing.T) *WebUI {
	t.Helper()
	cfg := appconf.Defaults()
	cfg.Env = appconf.Development
	cfg.ApiKeys = []string{"secret-key"}

	clk := clock.NewMockClock(time.Date(2024, 9, 2, 7, 30, 0, 0, time.UTC))
	application, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), clk)
	require.NoError(t, err)
	t.Cleanup(application.Shutdown)
	return &WebUI{Application: application}
}

func TestDebugIndexHandler_ProductionReturns404(t *testing.T) {
	webUI := &WebUI{
		Application: &app.Application{
			Config: appconf.Config{Env: appconf.Production},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/debug?dataType=session", nil)
	rr := httptest.NewRecorder()
	webUI.debugIndexHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code, "Should return 404 in Production")
}

func TestDebugIndexHandler_DataTypes(t *testing.T) {
	webUI := newDebugUI(t)
	_, err := webUI.Session.Init("plain-token-xyz", session.Info{UserID: 2, Name: "Kip", Role: session.RoleDriver})
	require.NoError(t, err)

	tests := []struct {
		dataType string
		contains string
		absent   string
	}{
		{"session", "Kip", "plain-token-xyz"},
		{"counts", "Onboard", ""},
		{"trips", "Snapshot", ""},
		{"tracker", "not tracking", ""},
		{"config", "BackendURL", "secret-key"},
		{"", "Choose a data type", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug?dataType="+tt.dataType, nil)
			rr := httptest.NewRecorder()
			webUI.debugIndexHandler(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/html", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), tt.contains)
			if tt.absent != "" {
				assert.NotContains(t, rr.Body.String(), tt.absent)
			}
		})
	}
}

func TestSetWebUIRoutes(t *testing.T) {
	webUI := newDebugUI(t)
	mux := http.NewServeMux()
	webUI.SetWebUIRoutes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug?dataType=session", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "not logged in")
}
