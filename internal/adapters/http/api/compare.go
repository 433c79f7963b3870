package api

import (
	"net/http"

	"github.com/okian/pitwall/internal/domain/types"
)

// CompareDependencies exposes the model comparison table.
type CompareDependencies interface {
	CompareModels() []types.ModelComparison
}

// CompareHandler handles model comparison requests.
type CompareHandler struct {
	deps CompareDependencies
}

// NewCompareHandler creates a new comparison handler.
func NewCompareHandler(deps CompareDependencies) *CompareHandler {
	return &CompareHandler{deps: deps}
}

// HandleCompare handles GET /models/compare requests. Rows are ordered by
// MAE, best first; an empty list means nothing was evaluated yet.
func (h *CompareHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.CompareModels())
}
