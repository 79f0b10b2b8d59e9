package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// GroupGradingMethod controls partial credit for group questions.
type GroupGradingMethod string

const (
	// GroupProgressive awards fixed tiers for 1, 2, 3 and all statements correct.
	GroupProgressive GroupGradingMethod = "progressive"
	// GroupEqual awards linear credit per correct statement.
	GroupEqual GroupGradingMethod = "equal"
)

// GradingConfig holds the point pools of an exam.
type GradingConfig struct {
	Part1Total         float64            `json:"part1Total"` // choice
	Part2Total         float64            `json:"part2Total"` // group
	Part3Total         float64            `json:"part3Total"` // text
	Part4Total         float64            `json:"part4Total"` // reserved, never applicable
	GroupGradingMethod GroupGradingMethod `json:"groupGradingMethod"`
}

// DefaultGradingConfig is used by exams published without a grading config.
func DefaultGradingConfig() GradingConfig {
	return GradingConfig{
		Part1Total:         5,
		Part2Total:         2,
		Part3Total:         2,
		Part4Total:         1,
		GroupGradingMethod: GroupProgressive,
	}
}

// Validate rejects negative pools and unknown methods.
func (c GradingConfig) Validate() error {
	pools := []struct {
		name string
		v    float64
	}{
		{"part1Total", c.Part1Total},
		{"part2Total", c.Part2Total},
		{"part3Total", c.Part3Total},
		{"part4Total", c.Part4Total},
	}
	for _, p := range pools {
		if p.v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", p.name, p.v)
		}
	}
	switch c.GroupGradingMethod {
	case "", GroupProgressive, GroupEqual:
	default:
		return fmt.Errorf("unknown group grading method %q", c.GroupGradingMethod)
	}
	return nil
}

// ExamConfig is one entry of the exam bank.
type ExamConfig struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Title         string          `json:"title"`
	ClassName     string          `json:"className"`
	SecurityCode  string          `json:"securityCode"`
	Duration      int             `json:"duration"` // minutes
	MaxAttempts   int             `json:"maxAttempts,omitempty"`
	GradingConfig *GradingConfig  `json:"gradingConfig,omitempty"`
	AllowHints    bool            `json:"allowHints"`
	AllowReview   bool            `json:"allowReview"`
	Questions     []Question      `json:"questions"`
	Results       []StudentResult `json:"results"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// EffectiveGrading returns the exam's grading config or the default one.
func (e ExamConfig) EffectiveGrading() GradingConfig {
	if e.GradingConfig == nil {
		return DefaultGradingConfig()
	}
	return *e.GradingConfig
}

// Published reports whether the exam has a security code and can be taken.
func (e ExamConfig) Published() bool {
	return strings.TrimSpace(e.SecurityCode) != ""
}

// DurationSeconds returns the time limit in seconds.
func (e ExamConfig) DurationSeconds() int {
	return e.Duration * 60
}

// WithResult returns a copy of the exam with r prepended to its history.
func (e ExamConfig) WithResult(r StudentResult) ExamConfig {
	results := make([]StudentResult, 0, len(e.Results)+1)
	results = append(results, r)
	results = append(results, e.Results...)
	e.Results = results
	return e
}

// Question returns the question with the given id.
func (e ExamConfig) Question(id QuestionID) (Question, bool) {
	i := slices.IndexFunc(e.Questions, func(q Question) bool { return q.ID == id })
	if i < 0 {
		return Question{}, false
	}
	return e.Questions[i], true
}

// Student is a roster entry.
type Student struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"className"`
	Email     string `json:"email,omitempty"`
}

// Identity is the person taking an exam. Authenticated identities come from
// the identity collaborator and lock the name and class fields.
type Identity struct {
	StudentID     string `json:"studentId,omitempty"`
	Name          string `json:"name"`
	ClassName     string `json:"className"`
	Email         string `json:"email,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
}

// Complete reports whether both name and class are filled in.
func (i Identity) Complete() bool {
	return strings.TrimSpace(i.Name) != "" && strings.TrimSpace(i.ClassName) != ""
}
