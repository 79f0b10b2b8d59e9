package model

import "time"

// Outcome classifies a graded question.
type Outcome string

const (
	// OutcomeCorrect is a fully correct answer.
	OutcomeCorrect Outcome = "correct"
	// OutcomeWrong is an answered question that earned less than full credit.
	OutcomeWrong Outcome = "wrong"
	// OutcomeEmpty is a question left unanswered.
	OutcomeEmpty Outcome = "empty"
)

// Counts partitions the questions of an exam by outcome.
type Counts struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Empty   int `json:"empty"`
}

// Total returns the number of questions counted.
func (c Counts) Total() int { return c.Correct + c.Wrong + c.Empty }

// QuestionResult is the per-question breakdown of a graded result.
type QuestionResult struct {
	QuestionID  QuestionID   `json:"questionId"`
	Type        QuestionType `json:"type"`
	Outcome     Outcome      `json:"outcome"`
	Credit      float64      `json:"credit"`
	MaxCredit   float64      `json:"maxCredit"`
	SubCorrect  int          `json:"subCorrect,omitempty"`
	SubAnswered int          `json:"subAnswered,omitempty"`
	SubTotal    int          `json:"subTotal,omitempty"`
}

// StudentResult is the graded outcome of one submitted attempt. It is
// created once at submission and never mutated afterwards.
type StudentResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ClassName  string           `json:"className"`
	StudentID  string           `json:"studentId,omitempty"`
	Score      float64          `json:"score"`
	Total      float64          `json:"total"`
	Date       time.Time        `json:"date"`
	TimeSpent  int              `json:"timeSpent"` // seconds
	Violations int              `json:"violations"`
	Counts     Counts           `json:"counts"`
	Answers    AnswerSet        `json:"answers,omitempty"`
	Breakdown  []QuestionResult `json:"breakdown,omitempty"`
}

// ResultRow is one result flattened for reporting, with the exam it
// belongs to and the attempt number of the student on that exam.
type ResultRow struct {
	ExamID    string `json:"examId"`
	ExamCode  string `json:"examCode"`
	ExamTitle string `json:"examTitle"`
	Attempt   int    `json:"attempt"`
	StudentResult
}
