package api

import (
	"net/http"

	"github.com/okian/pitwall/internal/domain/types"
)

// StatusProvider exposes the pipeline snapshot.
type StatusProvider interface {
	Status() types.Status
}

// StatusHandler handles status requests.
type StatusHandler struct {
	deps StatusProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusProvider) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status())
}
