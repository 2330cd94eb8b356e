// Package webui serves developer-facing pages next to the JSON facade.
package webui

import (
	"net/http"

	"minibus.schoolride.org/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug", webUI.debugIndexHandler)
}
