package restapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/session"
	"minibus.schoolride.org/internal/trips"
)

const maxRequestBody = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind"`
	Field          string `json:"field,omitempty"`
	Measurement    string `json:"measurement,omitempty"`
	Retryable      bool   `json:"retryable,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	setJSONResponseType(&w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(api.logger(), "failed to encode response", err,
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, v any) {
	api.sendJSON(w, r, http.StatusOK, v)
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, body ErrorResponse) {
	body.RequestID = GetRequestID(r.Context())
	api.sendJSON(w, r, code, body)
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request, message string) {
	api.sendError(w, r, http.StatusNotFound, ErrorResponse{Error: message, Kind: "not_found"})
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, ErrorResponse{Error: "permission denied", Kind: "auth"})
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(api.logger(), "internal server error", err,
		slog.String("method", r.Method), slog.String("path", r.URL.Path))
	api.sendError(w, r, http.StatusInternalServerError, ErrorResponse{
		Error: "the server encountered a problem and could not process your request",
		Kind:  "internal",
	})
}

// sendFault maps an error from the core onto a status code: bad input is
// 400, a refused trip transition 409, any other policy refusal 422 and a
// backend failure 502.
func (api *RestAPI) sendFault(w http.ResponseWriter, r *http.Request, err error) {
	var (
		input     fault.InputError
		transport fault.TransportError
		rejection *trips.Rejection
	)
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrExpired):
		api.sendError(w, r, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Kind: "auth"})
	case errors.As(err, &input):
		api.sendError(w, r, http.StatusBadRequest, ErrorResponse{
			Error: input.Error(), Kind: "input", Field: input.Field,
		})
	case errors.As(err, &rejection):
		pf := rejection.PolicyFault()
		api.sendError(w, r, http.StatusConflict, ErrorResponse{
			Error: rejection.Error(), Kind: "policy", Measurement: pf.Measurement,
		})
	case fault.IsPolicy(err):
		body := ErrorResponse{Error: err.Error(), Kind: "policy"}
		if pf, ok := fault.AsPolicy(err); ok {
			body.Measurement = pf.Measurement
		}
		api.sendError(w, r, http.StatusUnprocessableEntity, body)
	case errors.As(err, &transport):
		api.sendError(w, r, http.StatusBadGateway, ErrorResponse{
			Error: transport.Error(), Kind: "transport", Retryable: true, UpstreamStatus: transport.Status,
		})
	default:
		api.serverErrorResponse(w, r, err)
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fault.InputError{Field: "body", Reason: "malformed JSON", Err: err}
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v <= 0 {
		return 0, fault.InputError{Field: name, Reason: "must be a positive integer"}
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fault.InputError{Field: name, Reason: "is required"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fault.InputError{Field: name, Reason: "must be a positive integer"}
	}
	return v, nil
}
