package terminal

import (
	"errors"
	"strconv"
	"strings"

	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/session"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errBadArgument    = errors.New("bad command argument")
	errHelp           = errors.New("help requested")
)

// parseCommand turns one line typed during an attempt into a session
// event. q is the question on screen, if any. Numbers typed by the
// student are one-based.
func parseCommand(line string, q *model.Question) (session.Event, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "n", "next":
		return session.Next{}, nil
	case "p", "prev":
		return session.Prev{}, nil
	case "g", "goto":
		k, err := number(rest)
		if err != nil {
			return nil, err
		}
		return session.Goto{Index: k - 1}, nil
	case "a", "answer":
		if q == nil {
			return nil, errBadArgument
		}
		i, err := optionIndex(rest, len(q.Options))
		if err != nil {
			return nil, err
		}
		return session.SelectOption{Option: q.Options[i]}, nil
	case "t", "text":
		return session.EnterText{Text: rest}, nil
	case "s", "set":
		if q == nil {
			return nil, errBadArgument
		}
		idx, val, _ := strings.Cut(rest, " ")
		k, err := number(idx)
		if err != nil || k > len(q.SubQuestions) {
			return nil, errBadArgument
		}
		v, err := truth(strings.TrimSpace(val))
		if err != nil {
			return nil, err
		}
		return session.SetSubAnswer{SubID: q.SubQuestions[k-1].ID, Value: v}, nil
	case "c", "clear":
		return session.ClearAnswer{}, nil
	case "submit":
		return session.RequestSubmit{}, nil
	case "y", "yes":
		return session.ConfirmSubmit{}, nil
	case "no":
		return session.CancelSubmit{}, nil
	case "ok":
		return session.Acknowledge{}, nil
	case "exit":
		return session.Exit{}, nil
	case "h", "help", "?":
		return nil, errHelp
	}
	return nil, errUnknownCommand
}

func number(s string) (int, error) {
	k, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || k < 1 {
		return 0, errBadArgument
	}
	return k, nil
}

// optionIndex accepts an option number or letter.
func optionIndex(s string, n int) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c <= 'z' {
			i := int(c - 'a')
			if i >= n {
				return 0, errBadArgument
			}
			return i, nil
		}
	}
	k, err := number(s)
	if err != nil || k > n {
		return 0, errBadArgument
	}
	return k - 1, nil
}

func truth(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "t", "true", "đ", "đúng", "1":
		return true, nil
	case "f", "false", "s", "sai", "0":
		return false, nil
	}
	return false, errBadArgument
}
