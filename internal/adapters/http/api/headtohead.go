package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/pitwall/internal/domain/types"
)

// HeadToHeadDependencies exposes pairwise win probabilities.
type HeadToHeadDependencies interface {
	HeadToHead(a, b string) (types.HeadToHead, error)
}

// HeadToHeadHandler handles head-to-head requests.
type HeadToHeadHandler struct {
	deps HeadToHeadDependencies
}

// NewHeadToHeadHandler creates a new head-to-head handler.
func NewHeadToHeadHandler(deps HeadToHeadDependencies) *HeadToHeadHandler {
	return &HeadToHeadHandler{deps: deps}
}

// HandleHeadToHead handles GET /head-to-head?a=X&b=Y requests.
func (h *HeadToHeadHandler) HandleHeadToHead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	a, b := strings.TrimSpace(q.Get("a")), strings.TrimSpace(q.Get("b"))
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: both a and b are required", ErrBadRequest))
		return
	}
	res, err := h.deps.HeadToHead(a, b)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
