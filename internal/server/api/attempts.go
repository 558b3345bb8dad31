package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/facegate/internal/store"
)

const defaultAttemptLimit = 50

// AttemptLister lists audited attempts.
type AttemptLister interface {
	Attempts(limit int) ([]*store.Attempt, error)
}

// AttemptsHandler handles GET /api/attempts.
type AttemptsHandler struct {
	lister AttemptLister
}

// NewAttemptsHandler creates an AttemptsHandler.
func NewAttemptsHandler(l AttemptLister) *AttemptsHandler {
	return &AttemptsHandler{lister: l}
}

type attemptsResponse struct {
	Attempts []*store.Attempt `json:"attempts"`
}

func (h *AttemptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultAttemptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	attempts, err := h.lister.Attempts(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*store.Attempt{}
	}
	writeJSON(w, http.StatusOK, attemptsResponse{Attempts: attempts})
}
