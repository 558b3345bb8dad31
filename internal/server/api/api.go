// Package api provides the kiosk's JSON HTTP handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/policy"
	"github.com/ayusman/facegate/internal/session"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string        `json:"error"`
	Reason policy.Reason `json:"reason,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeSessionError maps a session or gateway failure to a response.
func writeSessionError(w http.ResponseWriter, err error) {
	var gateErr *session.GateError
	var gwErr *gateway.Error
	switch {
	case errors.As(err, &gateErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: gateErr.Error(), Reason: gateErr.Verdict.Reason})
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrAlreadyCapturing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrIncomplete):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrCaptureFailed), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gwErr):
		status := http.StatusUnprocessableEntity
		if gwErr.Status == 0 || gwErr.Err != nil {
			status = http.StatusBadGateway
		}
		writeError(w, status, gateway.UserMessage(err))
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
