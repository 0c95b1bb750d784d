package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/internal/access"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
	ws "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

// HTTPHandlers provides REST and WebSocket endpoints for attempts.
type HTTPHandlers struct {
	service  *Service
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
}

// NewHTTPHandlers creates attempt handlers. hub and upgrader are only needed for live sessions.
func NewHTTPHandlers(service *Service, hub *ws.Hub, upgrader *websocket.Upgrader, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service:  service,
		hub:      hub,
		upgrader: upgrader,
		logger:   logger.With().Str("component", "attempt_http").Logger(),
	}
}

// Register mounts the attempt routes. guard wraps the routes that start an
// attempt (creation and live sessions); pass nil when access gating is off.
func (h *HTTPHandlers) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /v1/attempts", guard(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET /v1/attempts/{id}", h.Get)
	mux.HandleFunc("POST /v1/attempts/{id}/answers", h.Answer)
	mux.HandleFunc("POST /v1/attempts/{id}/advance", h.Advance)
	mux.HandleFunc("POST /v1/attempts/{id}/retreat", h.Retreat)
	mux.HandleFunc("POST /v1/attempts/{id}/restart", h.Restart)
	mux.HandleFunc("GET /v1/attempts/{id}/results", h.Results)
	if h.hub != nil && h.upgrader != nil {
		mux.Handle("GET /ws/attempts", guard(http.HandlerFunc(h.Live)))
	}
}

// CreateAttemptRequest is the body of POST /v1/attempts.
type CreateAttemptRequest struct {
	AssessmentID string `json:"assessment_id"`
	Subject      string `json:"subject,omitempty"`
}

// AnswerRequest is the body of POST /v1/attempts/{id}/answers. Exactly one of
// option_id, option_ids or value is set, matching the question kind.
type AnswerRequest struct {
	QuestionID string    `json:"question_id"`
	OptionID   *string   `json:"option_id,omitempty"`
	OptionIDs  *[]string `json:"option_ids,omitempty"`
	Value      *float64  `json:"value,omitempty"`
}

// Create handles POST /v1/attempts
func (h *HTTPHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.AssessmentID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "assessment_id is required", "assessment_id")
		return
	}
	if err := access.Check(r.Context(), req.AssessmentID); err != nil {
		httperrors.RespondForbidden(w, httperrors.ErrCodeNotEntitled, "Not entitled to this assessment")
		return
	}
	subject := req.Subject
	if claims, ok := access.ClaimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}

	view, err := h.service.Start(r.Context(), req.AssessmentID, subject)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, view)
}

// Get handles GET /v1/attempts/{id}
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attemptID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// Answer handles POST /v1/attempts/{id}/answers
func (h *HTTPHandlers) Answer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attemptID(w, r)
	if !ok {
		return
	}
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if err := validateAnswerRequest(&req); err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, err.Message, err.Field)
		return
	}

	var (
		view View
		err  error
	)
	switch {
	case req.OptionID != nil:
		view, err = h.service.Select(r.Context(), id, req.QuestionID, *req.OptionID)
	case req.OptionIDs != nil:
		view, err = h.service.SetSelection(r.Context(), id, req.QuestionID, *req.OptionIDs)
	default:
		view, err = h.service.SetValue(r.Context(), id, req.QuestionID, *req.Value)
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// Advance handles POST /v1/attempts/{id}/advance
func (h *HTTPHandlers) Advance(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Advance)
}

// Retreat handles POST /v1/attempts/{id}/retreat
func (h *HTTPHandlers) Retreat(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Retreat)
}

// Restart handles POST /v1/attempts/{id}/restart
func (h *HTTPHandlers) Restart(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Restart)
}

// Results handles GET /v1/attempts/{id}/results
func (h *HTTPHandlers) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attemptID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Results(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// Live handles GET /ws/attempts?assessment_id= and runs one live session per connection.
func (h *HTTPHandlers) Live(w http.ResponseWriter, r *http.Request) {
	assessmentID := r.URL.Query().Get("assessment_id")
	if assessmentID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "assessment_id is required", "assessment_id")
		return
	}
	if err := access.Check(r.Context(), assessmentID); err != nil {
		httperrors.RespondForbidden(w, httperrors.ErrCodeNotEntitled, "Not entitled to this assessment")
		return
	}
	if _, err := h.service.catalog.Get(assessmentID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	subject := ""
	if claims, ok := access.ClaimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.New()
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.Register(connID, wsConn)
	go wsConn.WritePump()
	defer h.hub.Unregister(connID)

	send := func(msg ws.Message) error {
		return h.hub.Send(connID, msg)
	}
	sess, err := h.service.OpenLive(r.Context(), assessmentID, subject, send)
	if err != nil {
		code, _ := classify(err)
		if msg, mErr := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: err.Error()}); mErr == nil {
			_ = send(msg)
		}
		return
	}
	defer sess.Close()

	wsConn.ReadPump(sess.Handle)
}

func (h *HTTPHandlers) navigate(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (View, error)) {
	id, ok := h.attemptID(w, r)
	if !ok {
		return
	}
	view, err := op(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

func (h *HTTPHandlers) attemptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidAttemptID, "Invalid attempt ID")
		return uuid.Nil, false
	}
	return id, true
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validateAnswerRequest(req *AnswerRequest) *ValidationError {
	if req.QuestionID == "" {
		return &ValidationError{Field: "question_id", Message: "question_id is required"}
	}
	set := 0
	if req.OptionID != nil {
		set++
	}
	if req.OptionIDs != nil {
		set++
	}
	if req.Value != nil {
		set++
	}
	if set != 1 {
		return &ValidationError{Field: "option_id", Message: "exactly one of option_id, option_ids or value is required"}
	}
	return nil
}

// classify maps service errors to an error code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		return httperrors.ErrCodeAttemptNotFound, http.StatusNotFound
	case errors.Is(err, catalog.ErrNotFound):
		return httperrors.ErrCodeAssessmentNotFound, http.StatusNotFound
	case errors.Is(err, runner.ErrUnknownQuestion):
		return httperrors.ErrCodeUnknownQuestion, http.StatusBadRequest
	case errors.Is(err, runner.ErrUnknownOption):
		return httperrors.ErrCodeUnknownOption, http.StatusBadRequest
	case errors.Is(err, runner.ErrOutOfRange):
		return httperrors.ErrCodeOutOfRange, http.StatusBadRequest
	case errors.Is(err, runner.ErrKindMismatch):
		return httperrors.ErrCodeKindMismatch, http.StatusBadRequest
	case errors.Is(err, runner.ErrComplete):
		return httperrors.ErrCodeAttemptComplete, http.StatusConflict
	case errors.Is(err, ErrNotComplete):
		return httperrors.ErrCodeAttemptNotComplete, http.StatusConflict
	case errors.Is(err, ErrBusy):
		return httperrors.ErrCodeAttemptBusy, http.StatusConflict
	case errors.Is(err, runner.ErrInvalid), errors.Is(err, runner.ErrIndexOutOfRange):
		return httperrors.ErrCodeAttemptInvalid, http.StatusUnprocessableEntity
	case errors.Is(err, access.ErrNotEntitled):
		return httperrors.ErrCodeNotEntitled, http.StatusForbidden
	}
	return httperrors.ErrCodeInternalError, http.StatusInternalServerError
}

func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	message := err.Error()
	switch status {
	case http.StatusNotFound:
		httperrors.RespondNotFound(w, code, message)
	case http.StatusBadRequest:
		httperrors.RespondBadRequest(w, code, message)
	case http.StatusForbidden:
		httperrors.RespondForbidden(w, code, message)
	case http.StatusConflict:
		httperrors.RespondConflict(w, code, message)
	case http.StatusUnprocessableEntity:
		httperrors.RespondUnprocessable(w, code, message)
	default:
		h.logger.Error().Err(err).Msg("attempt request failed")
		httperrors.RespondInternalError(w, "Internal error")
	}
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
