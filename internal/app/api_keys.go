package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKey extracts the caller's key from the X-API-Key header, falling back
// to the key query parameter.
func APIKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	return r.URL.Query().Get("key")
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	return app.IsInvalidAPIKey(APIKey(r))
}

// IsInvalidAPIKey reports whether key may not use the facade. With no keys
// configured the facade is open, which suits a loopback-only deployment.
func (app *Application) IsInvalidAPIKey(key string) bool {
	validKeys := app.Config.ApiKeys
	if len(validKeys) == 0 {
		return false
	}
	if key == "" {
		return true
	}

	for _, validKey := range validKeys {
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}

	return true
}
