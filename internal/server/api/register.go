package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/session"
)

// Enroller exposes the kiosk's registration session.
type Enroller interface {
	Registration() *session.Registration
	ResetRegistration() session.Snapshot
}

// RegisterHandler handles the /api/register resources:
//
//	GET    /api/register         current snapshot
//	POST   /api/register         start the capture sequence
//	DELETE /api/register         leave the flow and start over
//	POST   /api/register/retake  discard samples
//	POST   /api/register/submit  submit samples
type RegisterHandler struct {
	enroller Enroller
}

// NewRegisterHandler creates a RegisterHandler.
func NewRegisterHandler(e Enroller) *RegisterHandler {
	return &RegisterHandler{enroller: e}
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/register")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.enroller.Registration().Snapshot())
	case path == "" && r.Method == http.MethodPost:
		h.start(w, r)
	case path == "" && r.Method == http.MethodDelete:
		writeJSON(w, http.StatusOK, h.enroller.ResetRegistration())
	case path == "retake" && r.Method == http.MethodPost:
		h.retake(w)
	case path == "submit" && r.Method == http.MethodPost:
		h.submit(w, r)
	case path == "" || path == "retake" || path == "submit":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

func (h *RegisterHandler) start(w http.ResponseWriter, r *http.Request) {
	var p gateway.Profile
	if !decodeJSON(w, r, &p) {
		return
	}

	reg := h.enroller.Registration()
	if err := reg.Start(r.Context(), p); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reg.Snapshot())
}

func (h *RegisterHandler) retake(w http.ResponseWriter) {
	reg := h.enroller.Registration()
	if err := reg.Retake(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg.Snapshot())
}

func (h *RegisterHandler) submit(w http.ResponseWriter, r *http.Request) {
	reg := h.enroller.Registration()
	if _, err := reg.Submit(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg.Snapshot())
}
