// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Defaults returns the request fields applied when a submission
	// leaves them unset.
	Defaults() model.AdmissionRequest

	// Submit records and enqueues an admission. It returns an error
	// wrapping ErrBackpressure when the queue is full and ErrBadRequest when
	// the source is refused.
	Submit(ctx context.Context, req model.AdmissionRequest) (model.Job, error)

	// Job returns a submitted admission. Unknown or evicted IDs return an
	// error wrapping ErrNotFound.
	Job(ctx context.Context, id string) (model.Job, error)
}

// Server wires HTTP routes for the admission API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	admissionsHandler *AdmissionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		admissionsHandler: NewAdmissionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/admissions", MetricsMiddleware(s.admissionsHandler.HandleSubmit, "admissions"))
	mux.HandleFunc("/v1/admissions/", MetricsMiddleware(s.admissionsHandler.HandleGet, "admission"))
}

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
