// Package report flattens exam results for score reports and exports.
package report

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/quizmaster/internal/attempt"
	"github.com/pavelanni/quizmaster/internal/model"
)

// Flatten lists every result of every exam, most recent submission first.
// Attempt numbers count each student's results per exam, oldest first.
func Flatten(exams []model.ExamConfig) []model.ResultRow {
	var rows []model.ResultRow
	for _, e := range exams {
		attempts := make(map[string]int)
		// Results are stored newest first.
		for i := len(e.Results) - 1; i >= 0; i-- {
			r := e.Results[i]
			key := attempt.Key(r.Name, r.ClassName)
			attempts[key]++
			rows = append(rows, model.ResultRow{
				ExamID:        e.ID,
				ExamCode:      e.Code,
				ExamTitle:     e.Title,
				Attempt:       attempts[key],
				StudentResult: r,
			})
		}
	}
	slices.SortStableFunc(rows, func(a, b model.ResultRow) int {
		return b.Date.Compare(a.Date)
	})
	return rows
}

// Filter narrows result rows. Empty fields match everything; ExamCode
// "all" does too.
type Filter struct {
	ExamCode      string
	ClassContains string
	NameContains  string
}

func (f Filter) match(r model.ResultRow) bool {
	if f.ExamCode != "" && f.ExamCode != "all" && r.ExamCode != f.ExamCode {
		return false
	}
	if !containsFold(r.ClassName, f.ClassContains) {
		return false
	}
	return containsFold(r.Name, f.NameContains)
}

func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Apply returns the rows matching f, keeping their order.
func (f Filter) Apply(rows []model.ResultRow) []model.ResultRow {
	var out []model.ResultRow
	for _, r := range rows {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

var csvHeader = []string{"No", "Exam code", "Name", "Class", "Correct", "Wrong", "Score", "Submitted"}

// WriteCSV writes rows as a spreadsheet-friendly CSV file with a UTF-8
// byte order mark.
func WriteCSV(w io.Writer, rows []model.ResultRow) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for i, r := range rows {
		submitted := ""
		if !r.Date.IsZero() {
			submitted = r.Date.Format(time.RFC3339)
		}
		rec := []string{
			strconv.Itoa(i + 1),
			r.ExamCode,
			r.Name,
			r.ClassName,
			strconv.Itoa(r.Counts.Correct),
			strconv.Itoa(r.Counts.Wrong),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			submitted,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Overview summarizes the whole exam bank.
type Overview struct {
	Students   int `json:"students"` // distinct name and class pairs with a result
	Exams      int `json:"exams"`
	Published  int `json:"published"`
	Violations int `json:"violations"`
}

// Summarize computes the bank overview.
func Summarize(exams []model.ExamConfig) Overview {
	seen := make(map[string]struct{})
	ov := Overview{Exams: len(exams)}
	for _, e := range exams {
		if e.Published() {
			ov.Published++
		}
		for _, r := range e.Results {
			seen[attempt.Key(r.Name, r.ClassName)] = struct{}{}
			ov.Violations += r.Violations
		}
	}
	ov.Students = len(seen)
	return ov
}

// Stats summarizes the results of one exam.
type Stats struct {
	ExamID         string  `json:"examId"`
	Attempts       int     `json:"attempts"`
	Students       int     `json:"students"`
	MeanScore      float64 `json:"meanScore"`
	MaxScore       float64 `json:"maxScore"`
	MinScore       float64 `json:"minScore"`
	MeanViolations float64 `json:"meanViolations"`
}

// ExamStats computes score statistics for one exam. All figures are zero
// when nobody has submitted.
func ExamStats(e model.ExamConfig) Stats {
	st := Stats{ExamID: e.ID, Attempts: len(e.Results)}
	if st.Attempts == 0 {
		return st
	}
	seen := make(map[string]struct{})
	var sum float64
	var violations int
	st.MaxScore = e.Results[0].Score
	st.MinScore = e.Results[0].Score
	for _, r := range e.Results {
		seen[attempt.Key(r.Name, r.ClassName)] = struct{}{}
		sum += r.Score
		violations += r.Violations
		st.MaxScore = max(st.MaxScore, r.Score)
		st.MinScore = min(st.MinScore, r.Score)
	}
	st.Students = len(seen)
	st.MeanScore = sum / float64(st.Attempts)
	st.MeanViolations = float64(violations) / float64(st.Attempts)
	return st
}

// Best returns each student's highest-scoring result on an exam, ordered
// by class then name.
func Best(e model.ExamConfig) []model.StudentResult {
	best := make(map[string]model.StudentResult)
	for _, r := range e.Results {
		k := attempt.Key(r.Name, r.ClassName)
		if cur, ok := best[k]; !ok || r.Score > cur.Score {
			best[k] = r
		}
	}
	out := make([]model.StudentResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.StudentResult) int {
		if c := cmp.Compare(strings.ToLower(a.ClassName), strings.ToLower(b.ClassName)); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}
