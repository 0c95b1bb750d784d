package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

func uuidFromByte(b byte) uuid.UUID {
	var arr [16]byte
	arr[15] = b
	return uuid.UUID(arr)
}

func sampleSubmission(attempt byte, assessmentID string, completedAt time.Time) Submission {
	return Submission{
		ID:           uuidFromByte(100 + attempt),
		AttemptID:    uuidFromByte(attempt),
		AssessmentID: assessmentID,
		Subject:      "patient-7",
		Answers: assessment.AnswerSet{
			"smoking":  assessment.SingleAnswer("never"),
			"exercise": assessment.MultiAnswer("cardio", "strength"),
			"sleep":    assessment.SliderAnswer(7.5),
		},
		Labels: []assessment.LabeledAnswer{
			{QuestionID: "smoking", Question: "Do you smoke?", Answer: "Never"},
		},
		Metrics: scoring.Metrics{
			{Name: "recovery_speed", Label: "Faster recovery", Unit: "%", Value: 35, Max: 40},
		},
		CompletedAt: completedAt,
	}
}
