//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wsmsg "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

func dialLive(t *testing.T, assessmentID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	baseWS := envOrDefault("INTEGRATION_WS_URL", "ws://localhost:8080/ws/attempts")
	u, err := url.Parse(baseWS)
	if err != nil {
		t.Fatalf("invalid WS url: %v", err)
	}
	q := u.Query()
	if assessmentID != "" {
		q.Set("assessment_id", assessmentID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token := accessToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(u.String(), header)
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsmsg.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(timeout))
	var msg wsmsg.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	return msg
}

func readView(t *testing.T, conn *websocket.Conn) attemptView {
	t.Helper()

	msg := readMessage(t, conn, 5*time.Second)
	if msg.Type != wsmsg.TypeState {
		t.Fatalf("expected state message, got %s: %s", msg.Type, msg.Payload)
	}
	var view attemptView
	if err := json.Unmarshal(msg.Payload, &view); err != nil {
		t.Fatalf("decode state payload failed: %v", err)
	}
	return view
}

func sendMessage(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	msg, err := wsmsg.NewMessage(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to send %s: %v", typ, err)
	}
}

func TestLiveSessionRequiresAssessment(t *testing.T) {
	_, resp, err := dialLive(t, "")
	if err == nil {
		t.Fatal("expected connection to fail without assessment_id")
	}
	if resp != nil && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	_, resp, err = dialLive(t, "no-such-assessment")
	if err == nil {
		t.Fatal("expected connection to fail for unknown assessment")
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// TestLiveSessionCompletes walks the live protocol to the navigate message.
func TestLiveSessionCompletes(t *testing.T) {
	assessmentID := envOrDefault("INTEGRATION_ASSESSMENT_ID", "erectile-health")

	conn, _, err := dialLive(t, assessmentID)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	view := readView(t, conn)
	if view.CurrentIndex != 0 || view.Question == nil {
		t.Fatalf("unexpected initial state: %+v", view)
	}

	for step := 0; step <= view.Total; step++ {
		q := view.Question
		switch q.Kind {
		case "single_choice":
			sendMessage(t, conn, wsmsg.TypeSelect, wsmsg.SelectPayload{QuestionID: q.ID, OptionID: q.Options[0].ID})
		case "multi_choice":
			sendMessage(t, conn, wsmsg.TypeSetSelection, wsmsg.SetSelectionPayload{QuestionID: q.ID, OptionIDs: []string{q.Options[0].ID}})
		case "slider":
			sendMessage(t, conn, wsmsg.TypeSetValue, wsmsg.SetValuePayload{QuestionID: q.ID, Value: q.Range.Min})
		}
		view = readView(t, conn)

		// single-choice answers may auto-advance; either way the index moves
		if view.AutoAdvanceMS == 0 {
			sendMessage(t, conn, wsmsg.TypeAdvance, nil)
		}
		view = readView(t, conn)
		if view.IsComplete {
			break
		}
	}
	if !view.IsComplete {
		t.Fatalf("live session did not complete: %+v", view)
	}

	msg := readMessage(t, conn, 5*time.Second)
	if msg.Type != wsmsg.TypeNavigate {
		t.Fatalf("expected navigate message, got %s", msg.Type)
	}
	var nav wsmsg.NavigatePayload
	if err := json.Unmarshal(msg.Payload, &nav); err != nil {
		t.Fatalf("decode navigate payload failed: %v", err)
	}
	if nav.Path == "" {
		t.Fatal("navigate message has no path")
	}
}

func TestLiveSessionUnknownMessageType(t *testing.T) {
	assessmentID := envOrDefault("INTEGRATION_ASSESSMENT_ID", "erectile-health")

	conn, _, err := dialLive(t, assessmentID)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()
	readView(t, conn)

	sendMessage(t, conn, "bogus", nil)
	msg := readMessage(t, conn, 5*time.Second)
	if msg.Type != wsmsg.TypeError {
		t.Fatalf("expected error message, got %s", msg.Type)
	}
}
