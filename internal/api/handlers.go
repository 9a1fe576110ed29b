package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/promptwatch/visibility/internal/model"
)

// StartPipelineRequest is the POST /api/v1/pipelines body.
type StartPipelineRequest struct {
	BrandID string                 `json:"brand_id" validate:"required"`
	Profile string                 `json:"profile" validate:"required,oneof=lite standard full custom"`
	Options *model.SamplingOptions `json:"options,omitempty"`
}

// StartPipelineResponse acknowledges an accepted run.
type StartPipelineResponse struct {
	PipelineID string `json:"pipeline_id"`
	FirstJobID string `json:"first_job_id"`
}

func (s *Server) handleStartPipeline(w http.ResponseWriter, r *http.Request) {
	var req StartPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	p, first, err := s.coord.StartPipeline(r.Context(), req.BrandID, model.Profile(req.Profile), req.Options)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusAccepted, StartPipelineResponse{
		PipelineID: p.ID,
		FirstJobID: first.ID,
	})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.coord.Status(r.Context(), chi.URLParam(r, "pipelineID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleCancelPipeline(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Cancel(r.Context(), chi.URLParam(r, "pipelineID")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLatestScore(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.LatestScore(r.Context(), chi.URLParam(r, "brandID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, sc)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, rep)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.lookback)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return "validation: " + strings.Join(parts, ", ")
}
