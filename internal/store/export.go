package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/quizmaster/internal/attempt"
	"github.com/pavelanni/quizmaster/internal/model"
)

// ExportResults flattens every recorded result across all exams for
// reporting, most recent submission first. Attempt numbers count each
// student's results per exam in submission order.
func (s *Store) ExportResults(ctx context.Context) ([]model.ResultRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.code, e.title, r.id, r.name, r.class_name, r.student_id, r.score, r.total,
			r.date, r.time_spent, r.violations, r.correct, r.wrong, r.empty, r.answers
		 FROM results r JOIN exams e ON e.id = r.exam_id
		 ORDER BY r.seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []model.ResultRow
	for rows.Next() {
		var (
			row     model.ResultRow
			answers string
		)
		r := &row.StudentResult
		if err := rows.Scan(&row.ExamID, &row.ExamCode, &row.ExamTitle, &r.ID, &r.Name, &r.ClassName,
			&r.StudentID, &r.Score, &r.Total, &r.Date, &r.TimeSpent, &r.Violations,
			&r.Counts.Correct, &r.Counts.Wrong, &r.Counts.Empty, &answers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of result %s: %w", r.ID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Number attempts walking the history oldest first.
	attempts := make(map[string]int)
	for i := len(out) - 1; i >= 0; i-- {
		key := out[i].ExamID + "|" + attempt.Key(out[i].Name, out[i].ClassName)
		attempts[key]++
		out[i].Attempt = attempts[key]
	}
	return out, nil
}
