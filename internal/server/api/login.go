package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayusman/facegate/internal/gateway"
)

// Authenticator runs login attempts and records logouts.
type Authenticator interface {
	Login(ctx context.Context) (*gateway.LoginResult, error)
	Logout(userID, name string)
}

// LoginHandler handles POST /api/login and POST /api/logout.
type LoginHandler struct {
	auth Authenticator
}

// NewLoginHandler creates a LoginHandler.
func NewLoginHandler(auth Authenticator) *LoginHandler {
	return &LoginHandler{auth: auth}
}

type loginResponse struct {
	Success bool         `json:"success"`
	User    gateway.User `json:"user"`
	Image   string       `json:"image,omitempty"`
	Message string       `json:"message,omitempty"`
}

type logoutRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/login":
		h.login(w, r)
	case "/api/logout":
		h.logout(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *LoginHandler) login(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.Login(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}

	resp := loginResponse{Success: true, User: res.User, Message: res.Message}
	if res.Image != "" && !strings.HasPrefix(res.Image, "data:") {
		resp.Image = "data:image/jpeg;base64," + res.Image
	} else {
		resp.Image = res.Image
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoginHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" && req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id or name is required")
		return
	}

	h.auth.Logout(req.UserID, req.Name)
	w.WriteHeader(http.StatusAccepted)
}
