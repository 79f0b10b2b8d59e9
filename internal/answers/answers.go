// Package answers holds the in-progress answers of one exam attempt.
package answers

import (
	"errors"
	"fmt"

	"github.com/pavelanni/quizmaster/internal/model"
)

var (
	// ErrTypeMismatch is returned when the write does not fit the question type.
	ErrTypeMismatch = errors.New("answer does not match question type")
	// ErrUnknownOption is returned for a choice that is not one of the options.
	ErrUnknownOption = errors.New("unknown option")
	// ErrUnknownSubQuestion is returned for a statement id the question does not have.
	ErrUnknownSubQuestion = errors.New("unknown sub-question")
)

// Store is the answer set of a running attempt. It is owned by a single
// session and is not safe for concurrent use.
type Store struct {
	answers model.AnswerSet
}

// New returns an empty store.
func New() *Store {
	return &Store{answers: make(model.AnswerSet)}
}

// SetChoice records the selected option of a choice question.
func (s *Store) SetChoice(q model.Question, option string) error {
	if q.Type != model.TypeChoice {
		return fmt.Errorf("set choice on question %s: %w", q.ID, ErrTypeMismatch)
	}
	if !q.HasOption(option) {
		return fmt.Errorf("set choice on question %s: %w %q", q.ID, ErrUnknownOption, option)
	}
	s.answers[q.ID] = model.ChoiceAnswer(option)
	return nil
}

// SetText records a free-text answer. The text is stored verbatim;
// trimming happens at grading.
func (s *Store) SetText(q model.Question, text string) error {
	if q.Type != model.TypeText {
		return fmt.Errorf("set text on question %s: %w", q.ID, ErrTypeMismatch)
	}
	s.answers[q.ID] = model.TextAnswer(text)
	return nil
}

// SetGroup records one statement of a group question, keeping the other
// statements already answered.
func (s *Store) SetGroup(q model.Question, subID string, value bool) error {
	if q.Type != model.TypeGroup {
		return fmt.Errorf("set statement on question %s: %w", q.ID, ErrTypeMismatch)
	}
	if _, ok := q.SubQuestion(subID); !ok {
		return fmt.Errorf("set statement on question %s: %w %q", q.ID, ErrUnknownSubQuestion, subID)
	}
	prev, _ := s.answers[q.ID].Statements()
	next := model.GroupAnswer(prev)
	next.Group[subID] = value
	s.answers[q.ID] = next
	return nil
}

// Clear removes the answer of a question.
func (s *Store) Clear(id model.QuestionID) {
	delete(s.answers, id)
}

// Get returns a copy of the answer of a question.
func (s *Store) Get(id model.QuestionID) (model.Answer, bool) {
	a, ok := s.answers[id]
	return a.Clone(), ok
}

// Snapshot returns a deep copy of all answers.
func (s *Store) Snapshot() model.AnswerSet {
	return s.answers.Clone()
}

// Len returns the number of questions with a recorded answer.
func (s *Store) Len() int { return len(s.answers) }
