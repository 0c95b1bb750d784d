//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
)

type option struct {
	ID string `json:"id"`
}

type question struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Options []option `json:"options"`
	Range   *struct {
		Min float64 `json:"min"`
	} `json:"range"`
}

type attemptView struct {
	AttemptID     string    `json:"attempt_id"`
	AssessmentID  string    `json:"assessment_id"`
	Status        string    `json:"status"`
	CurrentIndex  int       `json:"current_index"`
	Total         int       `json:"total"`
	Question      *question `json:"question"`
	CanAdvance    bool      `json:"can_advance"`
	IsComplete    bool      `json:"is_complete"`
	AutoAdvanceMS int64     `json:"auto_advance_ms"`
	Redirect      *struct {
		Route string `json:"route"`
		Path  string `json:"path"`
	} `json:"redirect"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// accessToken is only needed when the server runs with entitlement gating.
func accessToken() string {
	return os.Getenv("INTEGRATION_ACCESS_TOKEN")
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp errorBody
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("expected %d, got %d, error: %+v", wantStatus, resp.StatusCode, errResp)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
}

func startAttempt(t *testing.T, baseURL, assessmentID string) attemptView {
	t.Helper()

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/attempts", baseURL), map[string]string{
		"assessment_id": assessmentID,
	})
	var view attemptView
	decodeInto(t, resp, http.StatusCreated, &view)
	if view.AttemptID == "" {
		t.Fatal("empty attempt id")
	}
	return view
}

// firstAnswer builds an answer payload picking the first option, or the slider minimum.
func firstAnswer(q *question) map[string]any {
	payload := map[string]any{"question_id": q.ID}
	switch q.Kind {
	case "single_choice":
		payload["option_id"] = q.Options[0].ID
	case "multi_choice":
		payload["option_ids"] = []string{q.Options[0].ID}
	case "slider":
		payload["value"] = q.Range.Min
	}
	return payload
}
