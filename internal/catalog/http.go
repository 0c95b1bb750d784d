package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
)

// Summary is the list view of an assessment.
type Summary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"question_count"`
	Scored        bool   `json:"scored"`
}

// Detail is the full view of an assessment, including the metrics it derives.
type Detail struct {
	assessment.Definition
	Metrics []scoring.MetricSpec `json:"metrics,omitempty"`
}

// HTTPHandlers serves the catalog read-only.
type HTTPHandlers struct {
	catalog *Catalog
	logger  zerolog.Logger
}

func NewHTTPHandlers(c *Catalog, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		catalog: c,
		logger:  logger.With().Str("component", "catalog_http").Logger(),
	}
}

// Register mounts the catalog routes.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/assessments", h.List)
	mux.HandleFunc("GET /v1/assessments/{id}", h.Get)
}

// List handles GET /v1/assessments
func (h *HTTPHandlers) List(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.List()
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summary{
			ID:            e.ID,
			Title:         e.Title,
			Description:   e.Description,
			QuestionCount: e.Len(),
			Scored:        e.Scoring != nil,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"assessments": out})
}

// Get handles GET /v1/assessments/{id}
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.Get(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeAssessmentNotFound, "Assessment not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("get assessment")
		httperrors.RespondInternalError(w, "Failed to load assessment")
		return
	}
	detail := Detail{Definition: entry.Definition}
	if entry.Scoring != nil {
		detail.Metrics = entry.Scoring.Metrics
	}
	respondJSON(w, http.StatusOK, detail)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
