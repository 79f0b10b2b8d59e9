package bank

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pavelanni/quizmaster/internal/model"
)

//go:embed schema/exam.json
var examSchema []byte

// SchemaError lists the problems found in an exam document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid exam document: " + strings.Join(e.Problems, "; ")
}

// ValidateDocument checks an exam document, or an array of them, against
// the exam JSON schema.
func ValidateDocument(data []byte) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(examSchema))
	if err != nil {
		return fmt.Errorf("load exam schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate exam document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{}
	for _, re := range res.Errors() {
		se.Problems = append(se.Problems, re.String())
	}
	return se
}

// importedExam decodes the timestamps of an exam document leniently.
// Banks exported by the browser app carry locale-formatted dates.
type importedExam struct {
	model.ExamConfig
	CreatedAt json.RawMessage  `json:"createdAt"`
	Results   []importedResult `json:"results"`
}

type importedResult struct {
	model.StudentResult
	Date json.RawMessage `json:"date"`
}

func (d importedExam) exam() model.ExamConfig {
	e := d.ExamConfig
	e.CreatedAt = parseDate(d.CreatedAt, "exam", e.Title)
	if d.Results != nil {
		e.Results = make([]model.StudentResult, len(d.Results))
		for i, r := range d.Results {
			e.Results[i] = r.StudentResult
			e.Results[i].Date = parseDate(r.Date, "result", r.ID)
		}
	}
	return e
}

// dateLayouts are tried in order after RFC 3339. Day-first comes before
// month-first because the app is used with the vi-VN locale.
var dateLayouts = []string{
	"2/1/2006, 15:04:05",
	"15:04:05 2/1/2006",
	"1/2/2006, 3:04:05 PM",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate reads a timestamp in any of the accepted layouts. Anything
// else becomes the zero time and is logged.
func parseDate(raw json.RawMessage, kind, ref string) time.Time {
	var s string
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Warn("ignoring non-string date", "kind", kind, "ref", ref, "date", string(raw))
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	slog.Warn("ignoring unreadable date", "kind", kind, "ref", ref, "date", s)
	return time.Time{}
}

// ImportDocument validates and decodes an exam document. Exams without an
// id get a new one; missing creation times are set to now. Every question
// must satisfy its per-type shape. Dates that are not RFC 3339 are read
// in the browser's locale formats, or dropped with a warning.
func ImportDocument(data []byte, now time.Time) ([]model.ExamConfig, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var docs []importedExam
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("decode exams: %w", err)
		}
	} else {
		var d importedExam
		if err := json.Unmarshal(trimmed, &d); err != nil {
			return nil, fmt.Errorf("decode exam: %w", err)
		}
		docs = []importedExam{d}
	}

	exams := make([]model.ExamConfig, len(docs))
	for i, d := range docs {
		exams[i] = d.exam()
	}

	for i := range exams {
		e := &exams[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.Questions == nil {
			e.Questions = []model.Question{}
		}
		if e.Results == nil {
			e.Results = []model.StudentResult{}
		}
		for _, q := range e.Questions {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("exam %q: %w", e.Title, err)
			}
		}
		if e.GradingConfig != nil {
			if err := e.GradingConfig.Validate(); err != nil {
				return nil, fmt.Errorf("exam %q: %w", e.Title, err)
			}
		}
	}
	return exams, nil
}
