package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"gopkg.in/yaml.v3"
)

const maxRequestBytes = 64 << 10

// admissionRequest mirrors the body of POST /v1/admissions.
type admissionRequest struct {
	Source      string `json:"source"`
	Profile     string `json:"profile"`
	Strict      *bool  `json:"strict"`
	UpdateCache *bool  `json:"update_cache"`
}

func (a admissionRequest) validate() error {
	if strings.TrimSpace(a.Source) == "" {
		return errors.New("missing source")
	}
	return nil
}

type submitResponse struct {
	ID     string          `json:"id"`
	Status model.JobStatus `json:"status"`
}

// AdmissionsHandler handles submission and lookup of admission jobs.
type AdmissionsHandler struct {
	deps Dependencies
}

// NewAdmissionsHandler creates a new admissions handler.
func NewAdmissionsHandler(deps Dependencies) *AdmissionsHandler {
	return &AdmissionsHandler{deps: deps}
}

// HandleSubmit handles POST /v1/admissions.
func (h *AdmissionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_admission"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body admissionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	req := h.deps.Defaults()
	req.Source = body.Source
	if body.Profile != "" {
		req.Profile = body.Profile
	}
	if body.Strict != nil {
		req.Strict = *body.Strict
	}
	if body.UpdateCache != nil {
		req.UpdateCache = *body.UpdateCache
	}

	job, err := h.deps.Submit(r.Context(), req)
	switch {
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	w.Header().Set("Location", "/v1/admissions/"+job.ID)
	writeJSON(w, http.StatusAccepted, submitResponse{ID: job.ID, Status: job.Status})
}

// HandleGet handles GET /v1/admissions/{id}. The report is JSON unless
// format=yaml is requested.
func (h *AdmissionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_admission"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/admissions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	job, err := h.deps.Job(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		out, err := yaml.Marshal(job)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
