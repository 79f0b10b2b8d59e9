package bank

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/quizmaster/internal/model"
)

var (
	sectionRe  = regexp.MustCompile(`(?i)^(PHẦN\s+[IVX]+\.?|PART\s+\d+|PHẦN\s+\d+)`)
	questionRe = regexp.MustCompile(`(?i)^(Câu|Question)\s*\d+[:.]`)
	optionRe   = regexp.MustCompile(`^(\*)?([A-D])\.(.*)`)
	subRe      = regexp.MustCompile(`^(\*)?([a-d])\)(.*)`)
	rosterSep  = regexp.MustCompile(`[\t,]`)
)

type target int

const (
	targetQuestion target = iota
	targetOption
	targetSub
)

// ParseWordText turns text pasted from a word processor into questions.
//
// Section headers ("PHẦN I", "PART 2") apply to the questions after them.
// A question starts at "Câu 1:" or "Question 1.". Lines "A." to "D." are
// options and "a)" to "d)" are true/false statements; a leading "*" marks
// the correct option or a true statement. Other lines continue whatever
// was read last. A question with neither options nor statements is a
// text question.
func ParseWordText(text string) []model.Question {
	var (
		out     []model.Question
		section string
		cur     *model.Question
		last    target
	)
	flush := func() {
		if cur == nil {
			return
		}
		if len(cur.Options) == 0 && len(cur.SubQuestions) == 0 {
			cur.Type = model.TypeText
		}
		out = append(out, *cur)
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if sectionRe.MatchString(line) {
			section = line
			continue
		}
		if loc := questionRe.FindStringIndex(line); loc != nil {
			flush()
			cur = &model.Question{
				ID:       model.QuestionID(uuid.NewString()),
				Type:     model.TypeChoice,
				Section:  section,
				Question: strings.TrimSpace(line[loc[1]:]),
			}
			last = targetQuestion
			continue
		}
		if cur == nil {
			continue
		}

		if m := optionRe.FindStringSubmatch(line); m != nil {
			cur.Type = model.TypeChoice
			opt := strings.TrimSpace(m[3])
			cur.Options = append(cur.Options, opt)
			if m[1] != "" {
				cur.Answer = opt
			}
			last = targetOption
			continue
		}
		if m := subRe.FindStringSubmatch(line); m != nil {
			cur.Type = model.TypeGroup
			cur.SubQuestions = append(cur.SubQuestions, model.SubQuestion{
				ID:            uuid.NewString()[:8],
				Content:       strings.TrimSpace(m[3]),
				CorrectAnswer: m[1] != "",
			})
			last = targetSub
			continue
		}

		switch last {
		case targetQuestion:
			cur.Question += "\n" + line
		case targetOption:
			i := len(cur.Options) - 1
			wasAnswer := cur.Answer != "" && cur.Answer == cur.Options[i]
			cur.Options[i] += "\n" + line
			if wasAnswer {
				cur.Answer = cur.Options[i]
			}
		case targetSub:
			i := len(cur.SubQuestions) - 1
			cur.SubQuestions[i].Content += "\n" + line
		}
	}
	flush()
	return out
}

// ParseRoster reads "name, class[, email]" lines separated by commas or
// tabs. Lines with fewer than two fields are skipped.
func ParseRoster(text string) []model.Student {
	var out []model.Student
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := rosterSep.Split(line, -1)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		st := model.Student{Name: parts[0], ClassName: parts[1]}
		if len(parts) > 2 {
			st.Email = parts[2]
		}
		out = append(out, st)
	}
	return out
}
