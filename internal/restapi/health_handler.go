package restapi

import (
	"encoding/json"
	"net/http"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Session   string `json:"session,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Tracking  int    `json:"tracking_trip_id,omitempty"`
}

// healthHandler reports liveness. The service is unavailable until the
// backend client exists; the session and publisher are reported, not
// required.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Backend == nil || api.Session == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "backend client not initialized",
		})
		return
	}

	resp := HealthResponse{Status: "ok", Session: "none", Publisher: "disabled"}
	if api.Session.Active() {
		resp.Session = "active"
	}
	if api.NATS != nil {
		resp.Publisher = "disconnected"
		if api.NATS.Connected() {
			resp.Publisher = "connected"
		}
	}
	if api.Tracker != nil {
		if id, _, ok := api.Tracker.Current(); ok {
			resp.Tracking = id
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
