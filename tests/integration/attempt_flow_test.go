//go:build integration
// +build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCatalogListsAssessments(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")

	var out struct {
		Assessments []struct {
			ID            string `json:"id"`
			QuestionCount int    `json:"question_count"`
		} `json:"assessments"`
	}
	decodeInto(t, doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/assessments", baseURL), nil), http.StatusOK, &out)

	if len(out.Assessments) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, a := range out.Assessments {
		if a.QuestionCount == 0 {
			t.Fatalf("assessment %s has no questions", a.ID)
		}
	}
}

// TestAttemptRunsToCompletion answers every question with its first option and
// checks the attempt completes with a redirect and results.
func TestAttemptRunsToCompletion(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	assessmentID := envOrDefault("INTEGRATION_ASSESSMENT_ID", "erectile-health")

	view := startAttempt(t, baseURL, assessmentID)
	attemptURL := fmt.Sprintf("%s/v1/attempts/%s", baseURL, view.AttemptID)

	for step := 0; !view.IsComplete; step++ {
		if step > view.Total {
			t.Fatalf("attempt did not complete after %d steps", step)
		}
		if view.Question == nil {
			t.Fatalf("in-progress view without a question: %+v", view)
		}
		if view.CurrentIndex != step {
			t.Fatalf("expected index %d, got %d", step, view.CurrentIndex)
		}

		decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/answers", firstAnswer(view.Question)), http.StatusOK, &view)
		if !view.CanAdvance {
			t.Fatalf("cannot advance after answering %s", view.Question.ID)
		}
		decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/advance", nil), http.StatusOK, &view)
	}

	if view.Status != "complete" {
		t.Fatalf("expected complete status, got %s", view.Status)
	}
	if view.Redirect == nil || view.Redirect.Path == "" {
		t.Fatal("completed attempt has no redirect")
	}

	var results struct {
		Labels []struct {
			QuestionID string `json:"question_id"`
			Answer     string `json:"answer"`
		} `json:"labels"`
	}
	decodeInto(t, doJSON(t, http.MethodGet, attemptURL+"/results", nil), http.StatusOK, &results)
	if len(results.Labels) != view.Total {
		t.Fatalf("expected %d labels, got %d", view.Total, len(results.Labels))
	}
	for _, l := range results.Labels {
		if l.Answer == "" {
			t.Fatalf("empty label for %s", l.QuestionID)
		}
	}
}

func TestAttemptRetreatAndRestart(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	assessmentID := envOrDefault("INTEGRATION_ASSESSMENT_ID", "erectile-health")

	view := startAttempt(t, baseURL, assessmentID)
	attemptURL := fmt.Sprintf("%s/v1/attempts/%s", baseURL, view.AttemptID)
	first := view.Question.ID

	decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/answers", firstAnswer(view.Question)), http.StatusOK, &view)
	decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/advance", nil), http.StatusOK, &view)
	if view.CurrentIndex != 1 {
		t.Fatalf("expected index 1, got %d", view.CurrentIndex)
	}

	decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/retreat", nil), http.StatusOK, &view)
	if view.CurrentIndex != 0 || view.Question.ID != first {
		t.Fatalf("retreat did not return to %s: %+v", first, view)
	}
	if !view.CanAdvance {
		t.Fatal("retreat lost the stored answer")
	}

	decodeInto(t, doJSON(t, http.MethodPost, attemptURL+"/restart", nil), http.StatusOK, &view)
	if view.CurrentIndex != 0 || view.CanAdvance {
		t.Fatalf("restart did not clear answers: %+v", view)
	}
}
