package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"team-activity-pipeline/internal/apperrors"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/validation"
)

type PipelineResponse struct {
	TeamID         int64                   `json:"team_id"`
	PipelineStatus database.PipelineStatus `json:"pipeline_status"`
	Unanalyzed     int                     `json:"unanalyzed"`
}

// TriggerEnrichmentRequest is the optional body of POST /enrichment
type TriggerEnrichmentRequest struct {
	BatchSize int `json:"batch_size"`
}

// GetTeamPipeline handles GET /api/v1/teams/{teamID}/pipeline
func (h *Handler) GetTeamPipeline(w http.ResponseWriter, r *http.Request) {
	teamID, err := idParam(r, "teamID")
	if err != nil {
		Error(w, err, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	status, err := h.teams.GetTeamPipelineStatus(ctx, teamID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			Error(w, apperrors.NewNotFoundError("team"), http.StatusNotFound)
			return
		}
		Error(w, err, http.StatusInternalServerError)
		return
	}

	unanalyzed, err := h.teams.CountUnanalyzed(ctx, teamID)
	if err != nil {
		Error(w, err, http.StatusInternalServerError)
		return
	}

	JSON(w, http.StatusOK, PipelineResponse{
		TeamID:         teamID,
		PipelineStatus: status,
		Unanalyzed:     unanalyzed,
	})
}

// TriggerEnrichment handles POST /api/v1/teams/{teamID}/enrichment
func (h *Handler) TriggerEnrichment(w http.ResponseWriter, r *http.Request) {
	teamID, err := idParam(r, "teamID")
	if err != nil {
		Error(w, err, http.StatusBadRequest)
		return
	}

	var req TriggerEnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}

	if req.BatchSize != 0 {
		v := validation.New()
		v.InRange("batch_size", req.BatchSize, 1, h.maxBatchSize)
		if err := v.Validate(); err != nil {
			Error(w, err, http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	if _, err := h.teams.GetTeamPipelineStatus(ctx, teamID); err != nil {
		if apperrors.IsNotFound(err) {
			Error(w, apperrors.NewNotFoundError("team"), http.StatusNotFound)
			return
		}
		Error(w, err, http.StatusInternalServerError)
		return
	}

	jobID, err := h.publisher.PublishEnrichmentJob(ctx, teamID, req.BatchSize)
	if err != nil {
		Error(w, fmt.Errorf("failed to enqueue enrichment: %w", err), http.StatusInternalServerError)
		return
	}

	JSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}
