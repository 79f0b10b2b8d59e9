package hint

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/quizmaster/internal/model"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const maxAnswerRunes = 4000

var (
	studentAnswerRegex = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	questionTagRegex   = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.ParseFS(promptFS, "prompts/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

type statement struct {
	model.SubQuestion
	Student string
}

type promptData struct {
	Question   string
	Options    []string
	Correct    string
	Answer     string
	Statements []statement
	Language   string
}

// SystemPrompt returns the instructions sent with every explanation
// request. language names the reply language, or is empty.
func SystemPrompt(language string) (string, error) {
	return execute("system.tmpl", promptData{Language: language})
}

// BuildPrompt builds the explanation request for one question and the
// student's answer to it.
func BuildPrompt(q model.Question, a model.Answer) (string, error) {
	data := promptData{
		Question: sanitize(q.Question),
		Options:  q.Options,
		Correct:  q.Answer,
	}
	switch q.Type {
	case model.TypeChoice:
		s, _ := a.Str()
		data.Answer = sanitizeAnswer(s)
		return execute("choice.tmpl", data)
	case model.TypeGroup:
		given, _ := a.Statements()
		for _, sq := range q.SubQuestions {
			st := statement{SubQuestion: sq, Student: "no answer"}
			if v, ok := given[sq.ID]; ok {
				st.Student = fmt.Sprint(v)
			}
			data.Statements = append(data.Statements, st)
		}
		return execute("group.tmpl", data)
	case model.TypeText:
		s, _ := a.Str()
		data.Answer = sanitizeAnswer(s)
		return execute("text.tmpl", data)
	default:
		return "", fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
}

func execute(name string, data promptData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// sanitize strips the delimiting tags so quoted text cannot close them.
func sanitize(s string) string {
	s = studentAnswerRegex.ReplaceAllString(s, "")
	return questionTagRegex.ReplaceAllString(s, "")
}

func sanitizeAnswer(answer string) string {
	answer = strings.TrimSpace(sanitize(answer))
	if answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}

// languages maps configured language tags to the name used in prompts.
var languages = map[string]string{
	"en": "English",
	"vi": "Vietnamese",
}

// LanguageName returns the prompt name of a language tag, or "".
func LanguageName(tag string) string {
	base, _, _ := strings.Cut(strings.ToLower(tag), "-")
	return languages[base]
}
