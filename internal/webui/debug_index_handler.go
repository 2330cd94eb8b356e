package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"minibus.schoolride.org/internal/appconf"
)

//go:embed debug_index.html
var templateFS embed.FS

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	content := spew.Sdump(data)
	w.Header().Set("Content-Type", "text/html")
	tmpl, err := template.ParseFS(templateFS, "debug_index.html")
	if err != nil {
		slog.Error("failed to parse debug template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	err = tmpl.Execute(w, debugData{Title: title, Pre: content})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// trackerState is what the tracker exposes for the trip it follows.
type trackerState struct {
	TripID   int
	Estimate interface{}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	dataType := r.URL.Query().Get("dataType")

	var data interface{}
	var title string

	switch dataType {
	case "session":
		info, err := webUI.Session.Current()
		if err != nil {
			data = err.Error()
		} else {
			// The bearer token never leaves the process.
			info.Token = ""
			data = info
		}
		title = "Session"
	case "trips":
		data = webUI.Driver.Trips().Snapshot()
		title = "Driver Console - Trips"
	case "counts":
		data = webUI.Driver.Trips().Aggregates()
		title = "Driver Console - Counts"
	case "tracker":
		if id, est, ok := webUI.Tracker.Current(); ok {
			data = trackerState{TripID: id, Estimate: est}
		} else {
			data = "not tracking"
		}
		title = "Position Estimator"
	case "config":
		cfg := webUI.Config
		cfg.ApiKeys = redact(cfg.ApiKeys)
		data = cfg
		title = "Configuration"
	default:
		data = map[string]string{
			"error": "Please use one of the following: session, trips, counts, tracker, config.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}

func redact(keys []string) []string {
	out := make([]string, len(keys))
	for i := range keys {
		out[i] = "***"
	}
	return out
}
