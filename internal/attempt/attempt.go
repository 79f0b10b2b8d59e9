// Package attempt decides whether a student may start another attempt.
package attempt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/quizmaster/internal/model"
)

// ErrExhausted matches every *ExhaustedError.
var ErrExhausted = errors.New("attempts exhausted")

// ExhaustedError reports how many attempts were used out of the limit.
type ExhaustedError struct {
	Used int
	Max  int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("attempts exhausted: %d of %d used", e.Used, e.Max)
}

// Is lets errors.Is(err, ErrExhausted) match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Key is the identity key of a student: trimmed, lower-cased name and
// class joined by '|'.
func Key(name, className string) string {
	return normalize(name) + "|" + normalize(className)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AttemptsUsed counts the results recorded under the same name and class.
func AttemptsUsed(results []model.StudentResult, name, className string) int {
	key := Key(name, className)
	n := 0
	for _, r := range results {
		if Key(r.Name, r.ClassName) == key {
			n++
		}
	}
	return n
}

// AttemptsUsedBy counts the results of an identity. Results carrying a
// student id are matched by id when the identity has one; all others fall
// back to the name and class key.
func AttemptsUsedBy(results []model.StudentResult, id model.Identity) int {
	if id.StudentID == "" {
		return AttemptsUsed(results, id.Name, id.ClassName)
	}
	key := Key(id.Name, id.ClassName)
	n := 0
	for _, r := range results {
		switch {
		case r.StudentID != "":
			if r.StudentID == id.StudentID {
				n++
			}
		case Key(r.Name, r.ClassName) == key:
			n++
		}
	}
	return n
}

// CanAttempt reports whether another attempt is allowed. A limit of zero
// means unlimited.
func CanAttempt(maxAttempts, used int) bool {
	return maxAttempts == 0 || used < maxAttempts
}

// Remaining returns the attempts left, or unlimited when there is no limit.
func Remaining(maxAttempts, used int) (n int, unlimited bool) {
	if maxAttempts == 0 {
		return 0, true
	}
	return max(maxAttempts-used, 0), false
}

// Check gates an identity's next attempt at an exam.
func Check(exam model.ExamConfig, id model.Identity) error {
	if exam.MaxAttempts <= 0 {
		return nil
	}
	used := AttemptsUsedBy(exam.Results, id)
	if !CanAttempt(exam.MaxAttempts, used) {
		return &ExhaustedError{Used: used, Max: exam.MaxAttempts}
	}
	return nil
}
