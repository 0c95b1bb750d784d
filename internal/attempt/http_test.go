package attempt

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/clinic-assessments/internal/access"
	"github.com/gokatarajesh/clinic-assessments/internal/navigation"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
	ws "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

type testServer struct {
	mux  *http.ServeMux
	subs *mockSubmissions
	hub  *ws.Hub
}

func newTestServer(t *testing.T, guard func(http.Handler) http.Handler, delay time.Duration) testServer {
	t.Helper()
	subs := new(mockSubmissions)
	svc := NewService(testCatalog(t), NewMemoryStore(), subs, navigation.DefaultRoutes(), ServiceOptions{
		AutoAdvanceDelay: delay,
		LockWait:         50 * time.Millisecond,
	}, zerolog.Nop())
	hub := ws.NewHub(zerolog.Nop())
	h := NewHTTPHandlers(svc, hub, &websocket.Upgrader{}, zerolog.Nop())
	mux := http.NewServeMux()
	h.Register(mux, guard)
	return testServer{mux: mux, subs: subs, hub: hub}
}

func (s testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httperrors.ErrorResponse {
	t.Helper()
	var e httperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHTTPAttemptFlow(t *testing.T) {
	s := newTestServer(t, nil, 300*time.Millisecond)
	s.subs.On("Save", mock.Anything, mock.Anything).Return(nil)

	rec := s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "two-step"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	base := "/v1/attempts/" + view.AttemptID

	rec = s.do(t, http.MethodPost, base+"/answers", map[string]any{"question_id": "a", "option_id": "yes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(300), decodeView(t, rec).AutoAdvanceMS)

	rec = s.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeView(t, rec).CurrentIndex)

	rec = s.do(t, http.MethodPost, base+"/answers", map[string]any{"question_id": "b", "option_ids": []string{"x", "none"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"none"}, decodeView(t, rec).Answers["b"].Choices)

	rec = s.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.True(t, view.IsComplete)
	require.NotNil(t, view.Redirect)
	assert.Equal(t, "/assessments/results", view.Redirect.Path)

	rec = s.do(t, http.MethodGet, base+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res Results
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Labels, 2)
	assert.Equal(t, "None of these", res.Labels[1].Answer)
	score, _ := res.Metrics.Get("score")
	assert.Equal(t, 15.0, score)

	rec = s.do(t, http.MethodPost, base+"/answers", map[string]any{"question_id": "a", "option_id": "no"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httperrors.ErrCodeAttemptComplete, decodeError(t, rec).Error)
}

func TestHTTPErrors(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rec := s.do(t, http.MethodPost, "/v1/attempts", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "assessment_id", decodeError(t, rec).Field)

	rec = s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httperrors.ErrCodeAssessmentNotFound, decodeError(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/v1/attempts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httperrors.ErrCodeInvalidAttemptID, decodeError(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/v1/attempts/7d1f0c1e-8d49-4c1a-9a53-1f6b1c0b9a10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "age-check"})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/v1/attempts/" + decodeView(t, rec).AttemptID

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"no question", map[string]any{"value": 30}, http.StatusBadRequest, httperrors.ErrCodeValidationFailed},
		{"two answers", map[string]any{"question_id": "age", "value": 30, "option_id": "x"}, http.StatusBadRequest, httperrors.ErrCodeValidationFailed},
		{"out of range", map[string]any{"question_id": "age", "value": 300}, http.StatusBadRequest, httperrors.ErrCodeOutOfRange},
		{"unknown option", map[string]any{"question_id": "age", "option_id": "x"}, http.StatusBadRequest, httperrors.ErrCodeUnknownOption},
		{"wrong kind", map[string]any{"question_id": "age", "option_ids": []string{}}, http.StatusBadRequest, httperrors.ErrCodeKindMismatch},
		{"unknown question", map[string]any{"question_id": "height", "value": 3}, http.StatusBadRequest, httperrors.ErrCodeUnknownQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, base+"/answers", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}

	rec = s.do(t, http.MethodGet, base+"/results", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httperrors.ErrCodeAttemptNotComplete, decodeError(t, rec).Error)
}

func TestHTTPEntitlementGate(t *testing.T) {
	m := access.NewManager(access.TokenConfig{Secret: []byte("s"), Issuer: "test"})
	s := newTestServer(t, access.RequireEntitlement(m, zerolog.Nop()), 0)

	rec := s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "two-step"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := m.Issue("patient-3", []string{"age-check"})
	require.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "two-step"}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httperrors.ErrCodeNotEntitled, decodeError(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/v1/attempts", map[string]string{"assessment_id": "age-check", "subject": "spoofed"}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, rec.Code)

	// later transitions are not gated
	base := "/v1/attempts/" + decodeView(t, rec).AttemptID
	rec = s.do(t, http.MethodPost, base+"/answers", map[string]any{"question_id": "age", "value": 40})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readState(t *testing.T, conn *websocket.Conn) View {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, ws.TypeState, msg.Type, string(msg.Payload))
	var v View
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg, err := ws.NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func TestLiveSessionAutoAdvancesAndCompletes(t *testing.T) {
	s := newTestServer(t, nil, 20*time.Millisecond)
	s.subs.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/attempts?assessment_id=two-step"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readState(t, conn)
	assert.Equal(t, 0, initial.CurrentIndex)
	assert.Equal(t, 1, s.hub.Len(), "pushes are routed through the hub")

	send(t, conn, ws.TypeAdvance, nil)
	msg := readMessage(t, conn)
	assert.Equal(t, ws.TypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), httperrors.ErrCodeAnswerRequired)

	send(t, conn, ws.TypeSelect, ws.SelectPayload{QuestionID: "a", OptionID: "yes"})
	selected := readState(t, conn)
	assert.Equal(t, 0, selected.CurrentIndex)
	assert.Equal(t, "yes", selected.Answers["a"].Choice)
	assert.Equal(t, int64(20), selected.AutoAdvanceMS)

	advanced := readState(t, conn)
	assert.Equal(t, 1, advanced.CurrentIndex, "auto-advance fires on the server")

	send(t, conn, ws.TypeSetSelection, ws.SetSelectionPayload{QuestionID: "b", OptionIDs: []string{"x", "y"}})
	assert.Equal(t, []string{"x", "y"}, readState(t, conn).Answers["b"].Choices)

	send(t, conn, ws.TypeAdvance, nil)
	done := readState(t, conn)
	assert.True(t, done.IsComplete)

	nav := readMessage(t, conn)
	require.Equal(t, ws.TypeNavigate, nav.Type)
	assert.JSONEq(t, `{"route":"assessment-results","path":"/assessments/results"}`, string(nav.Payload))

	send(t, conn, ws.TypeAdvance, nil)
	again := readMessage(t, conn)
	require.Equal(t, ws.TypeError, again.Type)
	var payload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(again.Payload, &payload))
	assert.Equal(t, httperrors.ErrCodeAttemptComplete, payload.Code)

	send(t, conn, "dance", nil)
	unknown := readMessage(t, conn)
	assert.Equal(t, ws.TypeError, unknown.Type)
	assert.Contains(t, string(unknown.Payload), httperrors.ErrCodeUnknownMessageType)

	s.subs.AssertExpectations(t)
}

func TestLiveSessionRetreatFromFirstQuestionNavigatesBack(t *testing.T) {
	s := newTestServer(t, nil, 0)
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/attempts?assessment_id=two-step"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readState(t, conn)

	send(t, conn, ws.TypeRetreat, nil)
	nav := readMessage(t, conn)
	require.Equal(t, ws.TypeNavigate, nav.Type)
	assert.Contains(t, string(nav.Payload), `"route":"assessments"`)
}

func TestLiveRejectsUnknownAssessment(t *testing.T) {
	s := newTestServer(t, nil, 0)
	rec := s.do(t, http.MethodGet, "/ws/attempts?assessment_id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/ws/attempts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
