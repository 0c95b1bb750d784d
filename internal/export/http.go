package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
)

const (
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultLimit = 1000
	maxLimit     = 10000
)

// Catalog resolves assessment definitions.
type Catalog interface {
	Get(id string) (*catalog.Entry, error)
}

// Lister reads stored submissions.
type Lister interface {
	ListByAssessment(ctx context.Context, assessmentID string, limit int) ([]repository.Submission, error)
}

type HTTPHandlers struct {
	catalog Catalog
	subs    Lister
	logger  zerolog.Logger
}

func NewHTTPHandlers(cat Catalog, subs Lister, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		catalog: cat,
		subs:    subs,
		logger:  logger.With().Str("component", "export_http").Logger(),
	}
}

// Register mounts the export route behind guard, which may be nil.
func (h *HTTPHandlers) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	var handler http.Handler = http.HandlerFunc(h.Submissions)
	if guard != nil {
		handler = guard(handler)
	}
	mux.Handle("GET /v1/assessments/{id}/submissions.xlsx", handler)
}

// Submissions handles GET /v1/assessments/{id}/submissions.xlsx?limit=
func (h *HTTPHandlers) Submissions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLimit {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed,
				fmt.Sprintf("limit must be between 1 and %d", maxLimit), "limit")
			return
		}
		limit = n
	}

	entry, err := h.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeAssessmentNotFound, "Assessment not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("assessment", id).Msg("resolve assessment")
		httperrors.RespondInternalError(w, "Failed to load assessment")
		return
	}

	subs, err := h.subs.ListByAssessment(r.Context(), id, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("assessment", id).Msg("list submissions")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeExportFailed, "Failed to read submissions")
		return
	}

	var metrics []scoring.MetricSpec
	if entry.Scoring != nil {
		metrics = entry.Scoring.Metrics
	}
	var buf bytes.Buffer
	if err := Workbook(&buf, &entry.Definition, metrics, subs); err != nil {
		h.logger.Error().Err(err).Str("assessment", id).Msg("render workbook")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeExportFailed, "Failed to render workbook")
		return
	}

	h.logger.Info().Str("assessment", id).Int("rows", len(subs)).Msg("submissions exported")
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-submissions.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
