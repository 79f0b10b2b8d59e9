package session

import "github.com/pavelanni/quizmaster/internal/integrity"

// Event is an input to the session state machine. All events are applied
// through Session.Dispatch.
type Event interface {
	event()
}

// Start enters the exam with a security code. Name and ClassName are
// ignored when the session has an authenticated identity.
type Start struct {
	Name      string
	ClassName string
	Code      string
}

// Tick is one second of the exam timer.
type Tick struct{}

// Next moves to the following question.
type Next struct{}

// Prev moves to the previous question.
type Prev struct{}

// Goto jumps to the question at Index (zero-based).
type Goto struct{ Index int }

// SelectOption answers the current choice question.
type SelectOption struct{ Option string }

// EnterText answers the current text question.
type EnterText struct{ Text string }

// SetSubAnswer answers one statement of the current group question.
type SetSubAnswer struct {
	SubID string
	Value bool
}

// ClearAnswer removes the answer of the current question.
type ClearAnswer struct{}

// Violation reports a focus or presentation change from the host.
type Violation struct{ Event integrity.Event }

// Deterrent reports a blocked clipboard or context-menu action.
type Deterrent struct{ Kind integrity.EventKind }

// Acknowledge dismisses the violation warning.
type Acknowledge struct{}

// RequestSubmit asks for confirmation before submitting.
type RequestSubmit struct{}

// CancelSubmit returns from the confirmation to the exam.
type CancelSubmit struct{}

// ConfirmSubmit submits the attempt.
type ConfirmSubmit struct{}

// Exit leaves the exam. From playing it discards the attempt.
type Exit struct{}

// Retry starts another attempt from the finished screen.
type Retry struct{}

func (Start) event()         {}
func (Tick) event()          {}
func (Next) event()          {}
func (Prev) event()          {}
func (Goto) event()          {}
func (SelectOption) event()  {}
func (EnterText) event()     {}
func (SetSubAnswer) event()  {}
func (ClearAnswer) event()   {}
func (Violation) event()     {}
func (Deterrent) event()     {}
func (Acknowledge) event()   {}
func (RequestSubmit) event() {}
func (CancelSubmit) event()  {}
func (ConfirmSubmit) event() {}
func (Exit) event()          {}
func (Retry) event()         {}
