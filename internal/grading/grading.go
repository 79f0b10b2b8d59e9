// Package grading scores a submitted answer set against an exam's questions.
package grading

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/quizmaster/internal/model"
)

// fallbackTotal is reported as the total when no pool applies to the exam.
const fallbackTotal = 10

// Progressive partial-credit tiers for group questions, as fractions of the
// per-question value.
const (
	tierOne   = 0.10
	tierTwo   = 0.25
	tierThree = 0.50
)

// Grade scores answers against questions. It never fails: missing or
// malformed answers are graded as empty.
func Grade(questions []model.Question, cfg model.GradingConfig, answers model.AnswerSet) model.StudentResult {
	values := itemValues(questions, cfg)

	res := model.StudentResult{
		Total:     Total(questions, cfg),
		Breakdown: make([]model.QuestionResult, 0, len(questions)),
	}
	for _, q := range questions {
		qr := gradeQuestion(q, values[q.Type], cfg.GroupGradingMethod, answers[q.ID])
		switch qr.Outcome {
		case model.OutcomeEmpty:
			res.Counts.Empty++
		case model.OutcomeCorrect:
			res.Counts.Correct++
		default:
			res.Counts.Wrong++
		}
		res.Score += qr.Credit
		res.Breakdown = append(res.Breakdown, qr)
	}
	return res
}

// MaxScore sums the pools of the question types present in the exam.
func MaxScore(questions []model.Question, cfg model.GradingConfig) float64 {
	n := countByType(questions)
	var sum float64
	if n[model.TypeChoice] > 0 {
		sum += cfg.Part1Total
	}
	if n[model.TypeGroup] > 0 {
		sum += cfg.Part2Total
	}
	if n[model.TypeText] > 0 {
		sum += cfg.Part3Total
	}
	return sum
}

// Total is MaxScore, or the display fallback of 10 when no pool applies.
func Total(questions []model.Question, cfg model.GradingConfig) float64 {
	if m := MaxScore(questions, cfg); m > 0 {
		return m
	}
	return fallbackTotal
}

func countByType(questions []model.Question) map[model.QuestionType]int {
	n := make(map[model.QuestionType]int, 3)
	for _, q := range questions {
		n[q.Type]++
	}
	return n
}

func itemValues(questions []model.Question, cfg model.GradingConfig) map[model.QuestionType]float64 {
	n := countByType(questions)
	pools := map[model.QuestionType]float64{
		model.TypeChoice: cfg.Part1Total,
		model.TypeGroup:  cfg.Part2Total,
		model.TypeText:   cfg.Part3Total,
	}
	values := make(map[model.QuestionType]float64, len(pools))
	for t, pool := range pools {
		if n[t] > 0 {
			values[t] = pool / float64(n[t])
		}
	}
	return values
}

func gradeQuestion(q model.Question, v float64, method model.GroupGradingMethod, a model.Answer) model.QuestionResult {
	qr := model.QuestionResult{
		QuestionID: q.ID,
		Type:       q.Type,
		Outcome:    model.OutcomeEmpty,
		MaxCredit:  v,
	}
	switch q.Type {
	case model.TypeChoice:
		s, ok := a.Str()
		if !ok || s == "" {
			return qr
		}
		if s == q.Answer {
			qr.Outcome = model.OutcomeCorrect
			qr.Credit = v
		} else {
			qr.Outcome = model.OutcomeWrong
		}
	case model.TypeText:
		s, ok := a.Str()
		if !ok || strings.TrimSpace(s) == "" {
			return qr
		}
		if TextMatches(s, q.Answer) {
			qr.Outcome = model.OutcomeCorrect
			qr.Credit = v
		} else {
			qr.Outcome = model.OutcomeWrong
		}
	case model.TypeGroup:
		statements, _ := a.Statements()
		qr.SubTotal = len(q.SubQuestions)
		for _, sq := range q.SubQuestions {
			got, ok := statements[sq.ID]
			if !ok {
				continue
			}
			qr.SubAnswered++
			if got == sq.CorrectAnswer {
				qr.SubCorrect++
			}
		}
		if qr.SubAnswered == 0 {
			return qr
		}
		qr.Credit = groupCredit(v, qr.SubCorrect, qr.SubTotal, method)
		if qr.SubTotal > 0 && qr.SubCorrect == qr.SubTotal {
			qr.Outcome = model.OutcomeCorrect
		} else {
			qr.Outcome = model.OutcomeWrong
		}
	default:
		// Unknown types are graded as empty with no credit.
		qr.MaxCredit = 0
	}
	return qr
}

// groupCredit applies the partial-credit rule. The progressive tiers are
// checked before the all-correct rule, so a group of one to three
// statements answered fully correctly earns its tier, not full value.
func groupCredit(v float64, correct, total int, method model.GroupGradingMethod) float64 {
	if method == model.GroupEqual {
		if total == 0 {
			return 0
		}
		return v / float64(total) * float64(correct)
	}
	switch {
	case correct == 1:
		return v * tierOne
	case correct == 2:
		return v * tierTwo
	case correct == 3:
		return v * tierThree
	case total > 0 && correct == total:
		return v
	}
	return 0
}

// TextMatches compares a free-text answer with the canonical answer after
// trimming, NFC normalisation and Unicode case folding. A blank canonical
// answer never matches.
func TextMatches(answer, canonical string) bool {
	c := normalize(canonical)
	if c == "" {
		return false
	}
	return normalize(answer) == c
}

func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Answered reports whether a question counts as answered for the
// submission confirmation and the navigation sidebar.
func Answered(q model.Question, a model.Answer) bool {
	switch q.Type {
	case model.TypeGroup:
		statements, ok := a.Statements()
		if !ok || len(q.SubQuestions) == 0 {
			return false
		}
		n := 0
		for _, sq := range q.SubQuestions {
			if _, ok := statements[sq.ID]; ok {
				n++
			}
		}
		return n >= len(q.SubQuestions)
	default:
		s, ok := a.Str()
		return ok && strings.TrimSpace(s) != ""
	}
}

// Unanswered counts the questions that are not fully answered.
func Unanswered(questions []model.Question, answers model.AnswerSet) int {
	n := 0
	for _, q := range questions {
		if !Answered(q, answers[q.ID]) {
			n++
		}
	}
	return n
}
