package terminal

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pavelanni/quizmaster/internal/integrity"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/session"
)

func TestParseCommand(t *testing.T) {
	choice := &model.Question{ID: "1", Type: model.TypeChoice, Options: []string{"Huế", "Hà Nội", "Đà Nẵng"}}
	group := &model.Question{ID: "2", Type: model.TypeGroup, SubQuestions: []model.SubQuestion{{ID: "sa"}, {ID: "sb"}}}

	tests := []struct {
		line    string
		q       *model.Question
		want    session.Event
		wantErr error
	}{
		{"n", nil, session.Next{}, nil},
		{"  P ", nil, session.Prev{}, nil},
		{"g 3", nil, session.Goto{Index: 2}, nil},
		{"g 0", nil, nil, errBadArgument},
		{"g x", nil, nil, errBadArgument},
		{"a 2", choice, session.SelectOption{Option: "Hà Nội"}, nil},
		{"a c", choice, session.SelectOption{Option: "Đà Nẵng"}, nil},
		{"a D", choice, nil, errBadArgument},
		{"a 4", choice, nil, errBadArgument},
		{"a 1", nil, nil, errBadArgument},
		{"t  9.8 m/s ", nil, session.EnterText{Text: "9.8 m/s"}, nil},
		{"s 2 f", group, session.SetSubAnswer{SubID: "sb", Value: false}, nil},
		{"s 1 đúng", group, session.SetSubAnswer{SubID: "sa", Value: true}, nil},
		{"s 3 t", group, nil, errBadArgument},
		{"s 1 maybe", group, nil, errBadArgument},
		{"c", choice, session.ClearAnswer{}, nil},
		{"submit", nil, session.RequestSubmit{}, nil},
		{"yes", nil, session.ConfirmSubmit{}, nil},
		{"no", nil, session.CancelSubmit{}, nil},
		{"ok", nil, session.Acknowledge{}, nil},
		{"exit", nil, session.Exit{}, nil},
		{"?", nil, nil, errHelp},
		{"dance", nil, nil, errUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line, tt.q)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("event = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestScanInput(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		clean  string
		kinds  []integrity.EventKind
		pasted bool
	}{
		{"plain", "  a 1 ", "a 1", nil, false},
		{"focus lost twice", "\x1b[O\x1b[Ia 1\x1b[O\x1b[I", "a 1", []integrity.EventKind{integrity.WindowBlur, integrity.WindowBlur}, false},
		{"paste", "t \x1b[200~copied answer\x1b[201~", "", []integrity.EventKind{integrity.Paste}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, kinds, pasted := scanInput(tt.raw)
			if clean != tt.clean || pasted != tt.pasted || !reflect.DeepEqual(kinds, tt.kinds) {
				t.Errorf("scanInput = %q %v %v, want %q %v %v", clean, kinds, pasted, tt.clean, tt.kinds, tt.pasted)
			}
		})
	}
}

func TestClock(t *testing.T) {
	if got := clock(2700); got != "45:00" {
		t.Errorf("clock(2700) = %q", got)
	}
	if got := clock(59); got != "00:59" {
		t.Errorf("clock(59) = %q", got)
	}
}
