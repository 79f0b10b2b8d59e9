package model

import (
	"bytes"
	"encoding/json"
	"maps"
)

// AnswerKind is the shape of a recorded answer.
type AnswerKind uint8

const (
	// AnswerNone means nothing was recorded.
	AnswerNone AnswerKind = iota
	// AnswerString is the shape used by choice and text questions.
	AnswerString
	// AnswerGroup is the statement-by-statement shape used by group questions.
	AnswerGroup
)

// Answer is a student's raw response to one question, a tagged union over
// the string and group shapes. Whether the shape fits the question is
// decided at the grading boundary, not here.
type Answer struct {
	Kind  AnswerKind
	Text  string
	Group map[string]bool
}

// ChoiceAnswer returns an answer selecting the given option.
func ChoiceAnswer(option string) Answer {
	return Answer{Kind: AnswerString, Text: option}
}

// TextAnswer returns a free-text answer.
func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerString, Text: text}
}

// GroupAnswer returns a statement-by-statement answer. The map is copied.
func GroupAnswer(values map[string]bool) Answer {
	g := maps.Clone(values)
	if g == nil {
		g = map[string]bool{}
	}
	return Answer{Kind: AnswerGroup, Group: g}
}

// IsZero reports whether no answer was recorded.
func (a Answer) IsZero() bool { return a.Kind == AnswerNone }

// Str returns the string value of a string-shaped answer.
func (a Answer) Str() (string, bool) {
	if a.Kind != AnswerString {
		return "", false
	}
	return a.Text, true
}

// Statements returns the statement answers of a group-shaped answer.
// The returned map must not be modified.
func (a Answer) Statements() (map[string]bool, bool) {
	if a.Kind != AnswerGroup {
		return nil, false
	}
	return a.Group, true
}

// Clone returns a deep copy of the answer.
func (a Answer) Clone() Answer {
	a.Group = maps.Clone(a.Group)
	return a
}

// MarshalJSON writes the document shape: a string or an object of booleans.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerString:
		return json.Marshal(a.Text)
	case AnswerGroup:
		if a.Group == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(a.Group)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string or an object of booleans. Any other shape
// decodes as an empty answer instead of failing, so a malformed document
// still grades.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*a = Answer{Kind: AnswerString, Text: s}
		}
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		group := make(map[string]bool, len(raw))
		for k, v := range raw {
			var b bool
			if err := json.Unmarshal(v, &b); err == nil {
				group[k] = b
			}
		}
		*a = Answer{Kind: AnswerGroup, Group: group}
	}
	return nil
}

// AnswerSet maps question ids to the student's answers.
type AnswerSet map[QuestionID]Answer

// Clone returns a deep copy of the set.
func (s AnswerSet) Clone() AnswerSet {
	if s == nil {
		return nil
	}
	out := make(AnswerSet, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}
