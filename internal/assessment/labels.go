package assessment

import (
	"strconv"
	"strings"
)

// LabelDelimiter joins multi-choice labels.
const LabelDelimiter = ", "

// LabeledAnswer is a human-readable question/answer pair for storage or display.
type LabeledAnswer struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// ResolveLabels maps stored option ids back to their display labels, in
// question order. Ids that are no longer in the definition fall back to the raw
// id. Questions without an answer, or with an empty selection, are skipped.
// The answer set is never modified.
func ResolveLabels(def *Definition, answers AnswerSet) []LabeledAnswer {
	if def == nil || len(answers) == 0 {
		return []LabeledAnswer{}
	}
	out := make([]LabeledAnswer, 0, len(answers))
	for _, q := range def.Questions {
		ans, ok := answers[q.ID]
		if !ok || ans.Empty() {
			continue
		}
		text := answerText(q, ans)
		if text == "" {
			continue
		}
		out = append(out, LabeledAnswer{
			QuestionID: q.ID,
			Question:   q.Prompt,
			Answer:     text,
		})
	}
	return out
}

func answerText(q Question, ans Answer) string {
	switch ans.Kind() {
	case KindSlider:
		s := strconv.FormatFloat(*ans.Value, 'f', -1, 64)
		if q.Range != nil && q.Range.Unit != "" {
			s += " " + q.Range.Unit
		}
		return s
	case KindMultiChoice:
		labels := make([]string, 0, len(ans.Choices))
		for _, id := range ans.Choices {
			if l := optionLabel(q, id); l != "" {
				labels = append(labels, l)
			}
		}
		return strings.Join(labels, LabelDelimiter)
	default:
		return optionLabel(q, ans.Choice)
	}
}

func optionLabel(q Question, id string) string {
	if opt, ok := q.Option(id); ok && opt.Label != "" {
		return opt.Label
	}
	return id
}
