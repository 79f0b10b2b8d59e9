// Package bank creates, publishes and imports exams.
package bank

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizmaster/internal/model"
)

const (
	// DefaultDuration is the time limit of a new exam, in minutes.
	DefaultDuration = 45

	securityCodeLen = 6
	codeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	ErrInvalidCode     = errors.New("security code must be 6 letters or digits")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidAttempts = errors.New("max attempts must not be negative")
)

// NewExam returns an unpublished exam with no questions.
func NewExam(code, title, className string, now time.Time) model.ExamConfig {
	return model.ExamConfig{
		ID:          uuid.NewString(),
		Code:        strings.TrimSpace(code),
		Title:       strings.TrimSpace(title),
		ClassName:   strings.TrimSpace(className),
		Duration:    DefaultDuration,
		AllowReview: true,
		Questions:   []model.Question{},
		Results:     []model.StudentResult{},
		CreatedAt:   now,
	}
}

// GenerateSecurityCode returns a random 6-character upper-case code.
func GenerateSecurityCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for range securityCodeLen {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate security code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// PublishSettings are the options chosen when an exam is published.
// An empty SecurityCode keeps the exam's current code, or generates
// one if it has none.
type PublishSettings struct {
	SecurityCode string
	Duration     int
	MaxAttempts  int
	Grading      *model.GradingConfig
	AllowHints   bool
	AllowReview  bool
}

// Publish returns a copy of the exam with the settings applied.
func Publish(e model.ExamConfig, ps PublishSettings) (model.ExamConfig, error) {
	code := strings.ToUpper(strings.TrimSpace(ps.SecurityCode))
	if code == "" {
		code = strings.ToUpper(strings.TrimSpace(e.SecurityCode))
	}
	if code == "" {
		var err error
		if code, err = GenerateSecurityCode(); err != nil {
			return e, err
		}
	}
	if !validCode(code) {
		return e, fmt.Errorf("publish exam %s: %w", e.ID, ErrInvalidCode)
	}
	if ps.Duration <= 0 {
		return e, fmt.Errorf("publish exam %s: %w", e.ID, ErrInvalidDuration)
	}
	if ps.MaxAttempts < 0 {
		return e, fmt.Errorf("publish exam %s: %w", e.ID, ErrInvalidAttempts)
	}
	if ps.Grading != nil {
		if err := ps.Grading.Validate(); err != nil {
			return e, fmt.Errorf("publish exam %s: %w", e.ID, err)
		}
		g := *ps.Grading
		if g.GroupGradingMethod == "" {
			g.GroupGradingMethod = model.GroupProgressive
		}
		e.GradingConfig = &g
	}
	for _, q := range e.Questions {
		if err := q.Validate(); err != nil {
			return e, fmt.Errorf("publish exam %s: %w", e.ID, err)
		}
	}

	e.SecurityCode = code
	e.Duration = ps.Duration
	e.MaxAttempts = ps.MaxAttempts
	e.AllowHints = ps.AllowHints
	e.AllowReview = ps.AllowReview
	return e, nil
}

func validCode(code string) bool {
	if len(code) != securityCodeLen {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}
