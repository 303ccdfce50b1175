// Package handlers implements the operator HTTP endpoints of the enrichment worker.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bdougie/contributor-enrichment/internal/api/response"
	"github.com/bdougie/contributor-enrichment/internal/api/validation"
	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

const defaultSnapshotHistoryLimit = 8

// SnapshotReader reads persisted enrichment results.
type SnapshotReader interface {
	FetchHistoricalSnapshots(ctx context.Context, contributorID, workspaceID uuid.UUID, limit int) ([]models.AnalyticsSnapshot, error)
	LatestWorkspaceTopicSnapshot(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceTopicSnapshot, error)
}

// JobEnqueuer schedules enrichment jobs. The bool result is false when an identical job is already pending.
type JobEnqueuer interface {
	EnqueueContributor(ctx context.Context, contributorID, workspaceID uuid.UUID) (bool, error)
	EnqueueWorkspace(ctx context.Context, workspaceID uuid.UUID) (bool, error)
	EnqueueWorkspaceTopics(ctx context.Context, workspaceID uuid.UUID) (bool, error)
	EnqueueAllWorkspaces(ctx context.Context) (bool, error)
}

// EnqueueResponse is returned by the enqueue endpoints.
type EnqueueResponse struct {
	Enqueued bool `json:"enqueued"`
}

// EnrichmentHandler exposes snapshot reads and enrichment triggers.
type EnrichmentHandler struct {
	snapshots SnapshotReader
	enqueuer  JobEnqueuer
}

// NewEnrichmentHandler creates a new enrichment handler.
func NewEnrichmentHandler(snapshots SnapshotReader, enqueuer JobEnqueuer) *EnrichmentHandler {
	return &EnrichmentHandler{snapshots: snapshots, enqueuer: enqueuer}
}

// Register adds the handler's routes to mux.
func (h *EnrichmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/workspaces/{id}/topics", h.GetWorkspaceTopics)
	mux.HandleFunc("GET /v1/contributors/{id}/snapshots", h.ListContributorSnapshots)
	mux.HandleFunc("POST /v1/workspaces/{id}/enrich", h.EnqueueWorkspace)
	mux.HandleFunc("POST /v1/workspaces/{id}/topics/enrich", h.EnqueueWorkspaceTopics)
	mux.HandleFunc("POST /v1/contributors/{id}/enrich", h.EnqueueContributor)
	mux.HandleFunc("POST /v1/workspaces/enrich", h.EnqueueAllWorkspaces)
}

// GetWorkspaceTopics handles GET /v1/workspaces/{id}/topics.
func (h *EnrichmentHandler) GetWorkspaceTopics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Workspace")
	if !ok {
		return
	}

	snapshot, err := h.snapshots.LatestWorkspaceTopicSnapshot(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "No topic snapshot for workspace")
		return
	}

	response.RespondJSON(w, http.StatusOK, snapshot)
}

// ListContributorSnapshots handles GET /v1/contributors/{id}/snapshots.
func (h *EnrichmentHandler) ListContributorSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Contributor")
	if !ok {
		return
	}

	var query validation.SnapshotHistoryQuery
	if err := validation.ValidateAndDecodeQueryParams(r, &query); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = defaultSnapshotHistoryLimit
	}

	snapshots, err := h.snapshots.FetchHistoricalSnapshots(r.Context(), id, query.WorkspaceID, limit)
	if err != nil {
		respondServiceError(w, r, err, "")
		return
	}

	if snapshots == nil {
		snapshots = []models.AnalyticsSnapshot{}
	}

	response.RespondJSON(w, http.StatusOK, snapshots)
}

// EnqueueWorkspace handles POST /v1/workspaces/{id}/enrich.
func (h *EnrichmentHandler) EnqueueWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Workspace")
	if !ok {
		return
	}

	respondEnqueued(w, r, func(ctx context.Context) (bool, error) {
		return h.enqueuer.EnqueueWorkspace(ctx, id)
	})
}

// EnqueueWorkspaceTopics handles POST /v1/workspaces/{id}/topics/enrich.
func (h *EnrichmentHandler) EnqueueWorkspaceTopics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Workspace")
	if !ok {
		return
	}

	respondEnqueued(w, r, func(ctx context.Context) (bool, error) {
		return h.enqueuer.EnqueueWorkspaceTopics(ctx, id)
	})
}

// EnqueueContributor handles POST /v1/contributors/{id}/enrich?workspace_id=.
func (h *EnrichmentHandler) EnqueueContributor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "Contributor")
	if !ok {
		return
	}

	var query validation.EnqueueContributorQuery
	if err := validation.ValidateAndDecodeQueryParams(r, &query); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	respondEnqueued(w, r, func(ctx context.Context) (bool, error) {
		return h.enqueuer.EnqueueContributor(ctx, id, query.WorkspaceID)
	})
}

// EnqueueAllWorkspaces handles POST /v1/workspaces/enrich.
func (h *EnrichmentHandler) EnqueueAllWorkspaces(w http.ResponseWriter, r *http.Request) {
	respondEnqueued(w, r, h.enqueuer.EnqueueAllWorkspaces)
}

func respondEnqueued(w http.ResponseWriter, r *http.Request, enqueue func(context.Context) (bool, error)) {
	enqueued, err := enqueue(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to enqueue enrichment job", "path", r.URL.Path, "error", err)
		response.RespondServiceUnavailable(w, "Failed to enqueue job")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, EnqueueResponse{Enqueued: enqueued})
}

func pathUUID(w http.ResponseWriter, r *http.Request, resource string) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		response.RespondBadRequest(w, resource+" ID is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondBadRequest(w, "Invalid "+resource+" ID format")
		return uuid.Nil, false
	}

	return id, true
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundDetail string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if notFoundDetail == "" {
			notFoundDetail = err.Error()
		}
		response.RespondNotFound(w, notFoundDetail)
	case errors.Is(err, apperrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}
