package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	learnersSheet = "Learners"
	coursesSheet  = "Courses"
	timeLayout    = "2006-01-02 15:04:05"
)

// WriteWorkbook writes learners as an XLSX workbook with one sheet of learner
// totals and one sheet of per-course lines.
func WriteWorkbook(w io.Writer, learners []LearnerSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", learnersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(coursesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	title := cases.Title(language.English)

	rows := [][]any{{"Learner", "Courses", "Attempts", "Global Average", "Last Updated"}}
	for _, l := range learners {
		rows = append(rows, []any{l.LearnerID, l.TotalCourses, l.Attempts, round1(l.GlobalAvgScore), formatTime(l)})
	}
	if err := writeRows(f, learnersSheet, rows); err != nil {
		return err
	}

	rows = [][]any{{"Learner", "Course", "Difficulty", "Average", "Attempts", "Chapters", "Last Chapter"}}
	for _, l := range learners {
		for _, c := range l.Courses {
			rows = append(rows, []any{
				l.LearnerID,
				c.CourseID,
				title.String(string(c.Difficulty)),
				round1(c.AverageScore),
				c.Attempts,
				c.ChaptersAttempted,
				c.LastChapterID,
			})
		}
	}
	if err := writeRows(f, coursesSheet, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func formatTime(l LearnerSummary) string {
	if l.LastUpdated.IsZero() {
		return ""
	}
	return l.LastUpdated.UTC().Format(timeLayout)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
