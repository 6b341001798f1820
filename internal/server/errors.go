package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/observe"
)

// Error codes that do not come from [correction.ErrorCode].
const (
	codeRequestTooLarge = "request_too_large"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case "invalid_request":
		return http.StatusBadRequest
	case codeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case "malformed_output":
		return http.StatusBadGateway
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// toAPIError converts err into its client-facing form.
func toAPIError(err error) apiError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apiError{Code: codeRequestTooLarge, Message: "request body too large"}
	}
	return apiError{Code: correction.ErrorCode(err), Message: correction.PublicMessage(err)}
}

// writeError logs err and writes the matching error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAPIError(err)
	status := statusFor(ae.Code)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "code", ae.Code, "err", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "code", ae.Code, "err", err)
	}
	writeJSON(w, status, errorBody{Error: ae})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"code":"internal","message":"internal error"}}`, http.StatusInternalServerError)
	}
}
