package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// PipelineService defines the pipeline operations the API exposes.
// This abstraction allows for easier testing and decoupling from the
// concrete pipeline implementation.
type PipelineService interface {
	ResolveSingle(ctx context.Context, trackID, countryHint string) (*models.TrackAnalysis, error)
	ResolveBatch(ctx context.Context, trackIDs []string, countryHint string, progress chan<- tasks.ProgressUpdate) (map[string]*models.TrackAnalysis, error)
	UpdateSelection(ctx context.Context, trackID string, update repositories.SelectionUpdate) (*models.TrackAnalysis, error)
	Review(ctx context.Context, trackID string, action tasks.ReviewAction, reviewer string) (*models.TrackAnalysis, error)
	ReviewQueue(ctx context.Context) ([]tasks.ReviewItem, error)
}

// API serves the pipeline operations. Implements the [Handler] interface
// for registration with a [Router].
type API struct {
	pipeline PipelineService
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewAPI creates the analysis API handler.
func NewAPI(pipeline PipelineService, logger *log.Logger) *API {
	api := &API{pipeline: pipeline, logger: logger, mux: http.NewServeMux()}

	api.mux.HandleFunc("GET /health", api.health)
	api.mux.HandleFunc("GET /api/tracks/{id}/analysis", api.getAnalysis)
	api.mux.HandleFunc("POST /api/analyses/batch", api.postBatch)
	api.mux.HandleFunc("PATCH /api/tracks/{id}/selection", api.patchSelection)
	api.mux.HandleFunc("POST /api/tracks/{id}/review", api.postReview)
	api.mux.HandleFunc("GET /api/review/queue", api.getReviewQueue)

	return api
}

// Routes returns the HTTP routes this handler serves.
func (a *API) Routes() []string {
	return []string{"/health", "/api/"}
}

// ServeHTTP implements [http.Handler].
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// countryHint extracts the regional catalog hint for a request: an explicit
// X-Market header wins, else the Accept-Language region subtag; empty lets
// the pipeline fall back to its configured default.
func countryHint(r *http.Request) string {
	if market := r.Header.Get("X-Market"); market != "" {
		return market
	}
	return shared.CountryFromAcceptLanguage(r.Header.Get("Accept-Language"))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getAnalysis resolves one track, computing it when the cache has no fresh
// usable record. Errors still carry the best-known record so callers can
// surface the cached reason.
func (a *API) getAnalysis(w http.ResponseWriter, r *http.Request) {
	record, err := a.pipeline.ResolveSingle(r.Context(), r.PathValue("id"), countryHint(r))
	if err != nil {
		a.writeError(w, err, record)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) postBatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TrackIDs []string `json:"track_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return
	}

	results, err := a.pipeline.ResolveBatch(r.Context(), payload.TrackIDs, countryHint(r), nil)
	if err != nil {
		a.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) patchSelection(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TempoSelected *models.Selector `json:"tempo_selected"`
		KeySelected   *models.Selector `json:"key_selected"`
		TempoManual   *float64         `json:"tempo_manual"`
		KeyManual     *string          `json:"key_manual"`
		ScaleManual   *string          `json:"scale_manual"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return
	}

	record, err := a.pipeline.UpdateSelection(r.Context(), r.PathValue("id"), repositories.SelectionUpdate{
		TempoSelected: payload.TempoSelected,
		KeySelected:   payload.KeySelected,
		TempoManual:   payload.TempoManual,
		KeyManual:     payload.KeyManual,
		ScaleManual:   payload.ScaleManual,
	})
	if err != nil {
		a.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) postReview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action   tasks.ReviewAction `json:"action"`
		Reviewer string             `json:"reviewer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return
	}

	record, err := a.pipeline.Review(r.Context(), r.PathValue("id"), payload.Action, payload.Reviewer)
	if err != nil {
		a.writeError(w, err, record)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) getReviewQueue(w http.ResponseWriter, r *http.Request) {
	items, err := a.pipeline.ReviewQueue(r.Context())
	if err != nil {
		a.writeError(w, err, nil)
		return
	}
	if items == nil {
		items = []tasks.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// errorResponse is the JSON envelope for failed operations. The best-known
// record rides along when one exists, since cached diagnostics (error text,
// provenance, candidates) are what callers display.
type errorResponse struct {
	Error  string                `json:"error"`
	Record *models.TrackAnalysis `json:"record,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, err error, record *models.TrackAnalysis) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrInvalidTrackID), errors.Is(err, shared.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrISRCMismatch):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrUpstreamLookup):
		status = http.StatusBadGateway
	case errors.Is(err, shared.ErrAnalysisEngine), errors.Is(err, shared.ErrEngineTimeout):
		status = http.StatusBadGateway
	}

	a.logger.Warn("request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Record: record})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
