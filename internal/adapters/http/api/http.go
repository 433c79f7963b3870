// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	repository "github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/types"
)

// DefaultMaxLimit caps /rankings?limit=.
const DefaultMaxLimit = 100

// Dependencies required by HTTP handlers. Every operation is a read.
type Dependencies interface {
	StatusProvider
	RankingsDependencies
	RankDependencies
	CompareDependencies
	HeadToHeadDependencies
}

// Server wires HTTP routes for the read-only pipeline API.
type Server struct {
	healthHandler     *HealthHandler
	statusHandler     *StatusHandler
	rankingsHandler   *RankingsHandler
	rankHandler       *RankHandler
	compareHandler    *CompareHandler
	headToHeadHandler *HeadToHeadHandler
}

// NewServer creates a new API server with all handlers. maxLimit below one
// selects DefaultMaxLimit.
func NewServer(deps Dependencies, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:     NewHealthHandler(),
		statusHandler:     NewStatusHandler(deps),
		rankingsHandler:   NewRankingsHandler(deps, maxLimit),
		rankHandler:       NewRankHandler(deps),
		compareHandler:    NewCompareHandler(deps),
		headToHeadHandler: NewHeadToHeadHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/rankings", MetricsMiddleware(s.rankingsHandler.HandleGetRankings, "rankings"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/models/compare", MetricsMiddleware(s.compareHandler.HandleCompare, "models_compare"))
	mux.HandleFunc("/head-to-head", MetricsMiddleware(s.headToHeadHandler.HandleHeadToHead, "head_to_head"))
}

// Entry mirrors the read shape returned by ranking queries.
type Entry = types.RatingEntry

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstreamError maps controller errors to a status code.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrStageNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
