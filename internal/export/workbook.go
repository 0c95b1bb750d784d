// Package export renders completed submissions as spreadsheets for clinic staff.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

const (
	SubmissionsSheet = "Submissions"
	QuestionsSheet   = "Questions"
)

var fixedColumns = []string{"Submission ID", "Attempt ID", "Subject", "Completed At"}

// Workbook writes one assessment's submissions: a row per submission with one
// column per question (display labels) and per metric.
func Workbook(w io.Writer, def *assessment.Definition, metrics []scoring.MetricSpec, subs []repository.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SubmissionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, 0, len(fixedColumns)+def.Len()+len(metrics))
	for _, c := range fixedColumns {
		header = append(header, c)
	}
	for _, q := range def.Questions {
		header = append(header, q.Prompt)
	}
	for _, m := range metrics {
		header = append(header, metricHeader(m))
	}
	if err := f.SetSheetRow(SubmissionsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := boldRow(f, SubmissionsSheet, len(header)); err != nil {
		return err
	}

	for i, sub := range subs {
		row := submissionRow(def, metrics, sub)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SubmissionsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(SubmissionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := questionsSheet(f, def); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func submissionRow(def *assessment.Definition, metrics []scoring.MetricSpec, sub repository.Submission) []any {
	byQuestion := make(map[string]string, len(sub.Labels))
	for _, l := range sub.Labels {
		byQuestion[l.QuestionID] = l.Answer
	}
	// older rows may predate stored labels
	if len(sub.Labels) == 0 && len(sub.Answers) > 0 {
		for _, l := range assessment.ResolveLabels(def, sub.Answers) {
			byQuestion[l.QuestionID] = l.Answer
		}
	}

	row := []any{
		sub.ID.String(),
		sub.AttemptID.String(),
		sub.Subject,
		sub.CompletedAt.UTC().Format(time.RFC3339),
	}
	for _, q := range def.Questions {
		row = append(row, byQuestion[q.ID])
	}
	for _, m := range metrics {
		if v, ok := sub.Metrics.Get(m.Name); ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	return row
}

func questionsSheet(f *excelize.File, def *assessment.Definition) error {
	if _, err := f.NewSheet(QuestionsSheet); err != nil {
		return fmt.Errorf("add questions sheet: %w", err)
	}
	header := []any{"Question ID", "Kind", "Prompt", "Options"}
	if err := f.SetSheetRow(QuestionsSheet, "A1", &header); err != nil {
		return err
	}
	if err := boldRow(f, QuestionsSheet, len(header)); err != nil {
		return err
	}
	for i, q := range def.Questions {
		row := []any{q.ID, string(q.Kind), q.Prompt, describeOptions(q)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(QuestionsSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func describeOptions(q assessment.Question) string {
	if q.Kind == assessment.KindSlider && q.Range != nil {
		s := fmt.Sprintf("%g to %g", q.Range.Min, q.Range.Max)
		if q.Range.Unit != "" {
			s += " " + q.Range.Unit
		}
		return s
	}
	out := ""
	for i, opt := range q.Options {
		if i > 0 {
			out += assessment.LabelDelimiter
		}
		out += opt.ID + "=" + opt.Label
	}
	return out
}

func metricHeader(m scoring.MetricSpec) string {
	name := m.Label
	if name == "" {
		name = m.Name
	}
	if m.Unit != "" {
		name += " (" + m.Unit + ")"
	}
	return name
}

func boldRow(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}
