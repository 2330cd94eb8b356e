package restapi

import (
	"net/http"
	"strings"

	"minibus.schoolride.org/internal/backend"
	"minibus.schoolride.org/internal/fault"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   int    `json:"role_id"`
}

// loginHandler starts the session. Drivers get today's trips loaded before
// the response is written.
func (api *RestAPI) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		api.sendFault(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		api.sendFault(w, r, fault.InputError{Field: "email", Reason: "is required"})
		return
	}
	if req.Password == "" {
		api.sendFault(w, r, fault.InputError{Field: "password", Reason: "is required"})
		return
	}

	info, err := api.Login(r.Context(), backend.Credentials{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendResponse(w, r, info)
}

func (api *RestAPI) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.Logout(r.Context()); err != nil && !fault.IsTransport(err) {
		api.sendFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *RestAPI) sessionHandler(w http.ResponseWriter, r *http.Request) {
	info, err := api.Session.Current()
	if err != nil {
		api.sendFault(w, r, err)
		return
	}
	api.sendResponse(w, r, info)
}
