package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// QuestionType identifies how a question is answered and graded.
type QuestionType string

const (
	// TypeChoice is a single-answer multiple choice question.
	TypeChoice QuestionType = "choice"
	// TypeGroup is a set of true/false statements graded together.
	TypeGroup QuestionType = "group"
	// TypeText is a short free-text answer.
	TypeText QuestionType = "text"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeChoice, TypeGroup, TypeText:
		return true
	}
	return false
}

// QuestionID is a question identifier. Exam banks written by older clients
// store ids as JSON numbers, so it unmarshals from both numbers and strings.
type QuestionID string

// UnmarshalJSON accepts a JSON string or number.
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	// Integral floats such as 1700000000000 keep their integer form.
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		*id = QuestionID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = QuestionID(n.String())
	return nil
}

// SubQuestion is one true/false statement of a group question.
type SubQuestion struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	CorrectAnswer bool   `json:"correctAnswer"`
}

// Question is one assessable item of an exam.
type Question struct {
	ID           QuestionID    `json:"id"`
	Type         QuestionType  `json:"type"`
	Section      string        `json:"section,omitempty"`
	Question     string        `json:"question"`
	Options      []string      `json:"options,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	SubQuestions []SubQuestion `json:"subQuestions,omitempty"`
}

// HasOption reports whether opt is one of the question's options.
func (q Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// SubQuestion returns the statement with the given id.
func (q Question) SubQuestion(id string) (SubQuestion, bool) {
	for _, sq := range q.SubQuestions {
		if sq.ID == id {
			return sq, true
		}
	}
	return SubQuestion{}, false
}

// Validate checks the per-type shape invariant of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(string(q.ID)) == "" {
		return errors.New("question id is empty")
	}
	switch q.Type {
	case TypeChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: choice question has no options", q.ID)
		}
		if !q.HasOption(q.Answer) {
			return fmt.Errorf("question %s: answer %q is not one of the options", q.ID, q.Answer)
		}
	case TypeGroup:
		if len(q.SubQuestions) == 0 {
			return fmt.Errorf("question %s: group question has no statements", q.ID)
		}
		seen := make(map[string]bool, len(q.SubQuestions))
		for _, sq := range q.SubQuestions {
			if sq.ID == "" {
				return fmt.Errorf("question %s: statement with empty id", q.ID)
			}
			if seen[sq.ID] {
				return fmt.Errorf("question %s: duplicate statement id %q", q.ID, sq.ID)
			}
			seen[sq.ID] = true
		}
	case TypeText:
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}
