package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/quizmaster/internal/answers"
	"github.com/pavelanni/quizmaster/internal/attempt"
	"github.com/pavelanni/quizmaster/internal/hint"
	"github.com/pavelanni/quizmaster/internal/i18n"
	"github.com/pavelanni/quizmaster/internal/integrity"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/session"
)

// UI runs sessions over a line-oriented input and a text output.
type UI struct {
	in       io.Reader
	out      io.Writer
	host     *Host
	source   integrity.Source
	hints    *hint.Client
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a UI.
type Option func(*UI)

// WithHost clears the screen between renders on a real terminal.
func WithHost(h *Host) Option {
	return func(u *UI) { u.host = h }
}

// WithSource forwards host integrity events to running attempts.
func WithSource(src integrity.Source) Option {
	return func(u *UI) { u.source = src }
}

// WithHints enables explanations on the review screen.
func WithHints(c *hint.Client) Option {
	return func(u *UI) { u.hints = c }
}

// WithTickInterval sets the countdown period.
func WithTickInterval(d time.Duration) Option {
	return func(u *UI) { u.interval = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(u *UI) { u.logger = l }
}

func New(in io.Reader, out io.Writer, opts ...Option) *UI {
	u := &UI{in: in, out: out, interval: time.Second, logger: slog.Default()}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Run takes the student through s until they leave or input ends.
// Fields set in pre fill the start form.
func (u *UI) Run(ctx context.Context, s *session.Session, pre session.Start) error {
	lines := readLines(ctx, u.in)
	defer func() {
		if u.host != nil {
			u.host.Restore()
		}
	}()

	pending := pre
	for {
		switch s.State() {
		case session.StateStart:
			ok, err := u.startScreen(ctx, s, lines, &pending)
			if err != nil || !ok {
				return err
			}
		case session.StatePlaying:
			err := u.play(ctx, s, lines)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		case session.StateFinished:
			if u.host != nil {
				u.host.Restore()
			}
			done, err := u.finished(ctx, s, lines)
			if err != nil || done {
				return err
			}
			// Another attempt keeps the name and class.
			p := s.Player()
			pending = session.Start{Name: p.Name, ClassName: p.ClassName}
		}
	}
}

// startScreen asks for whatever the start form is missing and tries to
// start. It reports false when input has ended.
func (u *UI) startScreen(ctx context.Context, s *session.Session, lines <-chan string, p *session.Start) (bool, error) {
	exam := s.Exam()
	u.println(i18n.Td(ctx, "ExamHeader", map[string]any{
		"Title": exam.Title, "Duration": exam.Duration, "Count": len(exam.Questions),
	}))

	if !s.Authenticated() {
		for _, f := range []struct {
			msgID string
			field *string
		}{
			{"PromptName", &p.Name},
			{"PromptClass", &p.ClassName},
		} {
			if strings.TrimSpace(*f.field) != "" {
				continue
			}
			v, ok := u.ask(ctx, lines, i18n.T(ctx, f.msgID))
			if !ok {
				return false, nil
			}
			*f.field = v
		}
	}
	if strings.TrimSpace(p.Code) == "" {
		v, ok := u.ask(ctx, lines, i18n.T(ctx, "PromptCode"))
		if !ok {
			return false, nil
		}
		p.Code = v
	}

	err := s.Dispatch(ctx, *p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, session.ErrNotPublished):
		u.println(u.message(ctx, err))
		return false, nil
	case errors.Is(err, attempt.ErrExhausted):
		u.println(u.message(ctx, err))
		if s.Authenticated() {
			return false, nil
		}
		*p = session.Start{}
	case errors.Is(err, session.ErrIdentityRequired):
		u.println(u.message(ctx, err))
		p.Name, p.ClassName = "", ""
	default:
		u.println(u.message(ctx, err))
		p.Code = ""
	}
	return true, nil
}

// play runs one attempt until it is submitted, abandoned or input ends.
func (u *UI) play(ctx context.Context, s *session.Session, lines <-chan string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fwd := make(chan integrity.Event)
	redraw := make(chan struct{}, 1)
	opts := []session.RunnerOption{session.WithTickInterval(u.interval), session.WithSource(chanSource(fwd))}
	r := session.NewRunner(s, opts...)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(runCtx) }()
	if u.source != nil {
		go forward(runCtx, u.source.Events(), fwd, redraw)
	}

	var saveErr error
	u.render(ctx, r)
	for {
		select {
		case <-r.Done():
			if err := <-errc; err != nil {
				saveErr = err
			}
			u.announce(ctx, s, saveErr)
			return nil
		case <-redraw:
			u.render(ctx, r)
		case line, ok := <-lines:
			if !ok {
				cancel()
				<-errc
				return io.EOF
			}
			err := u.handle(ctx, r, line)
			if errors.Is(err, session.ErrStopped) {
				continue
			}
			var se *session.SaveError
			if errors.As(err, &se) {
				saveErr = err
				continue
			}
			var state session.State
			_ = r.View(ctx, func(s *session.Session) { state = s.State() })
			if state == session.StateStart {
				cancel()
				<-errc
				return nil
			}
			if err != nil {
				u.println(u.message(ctx, err))
			}
			if state == session.StatePlaying {
				u.render(ctx, r)
			}
		case <-ctx.Done():
			<-errc
			return ctx.Err()
		}
	}
}

type chanSource chan integrity.Event

func (c chanSource) Events() <-chan integrity.Event { return c }

// forward passes host events to the runner and asks for a redraw once
// each has been applied.
func forward(ctx context.Context, in <-chan integrity.Event, out chan<- integrity.Event, redraw chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			select {
			case redraw <- struct{}{}:
			default:
			}
		}
	}
}

func (u *UI) handle(ctx context.Context, r *session.Runner, raw string) error {
	line, kinds, pasted := scanInput(raw)
	for _, k := range kinds {
		var ev session.Event = session.Violation{Event: integrity.Event{Kind: k, At: time.Now()}}
		if k.Deterrent() {
			ev = session.Deterrent{Kind: k}
		}
		if err := r.Send(ctx, ev); err != nil {
			return err
		}
	}
	if pasted || line == "" {
		return nil
	}

	var q *model.Question
	if err := r.View(ctx, func(s *session.Session) {
		if cur, ok := s.Current(); ok {
			q = &cur
		}
	}); err != nil {
		return err
	}
	ev, err := parseCommand(line, q)
	if errors.Is(err, errHelp) {
		u.println(i18n.T(ctx, "Help"))
		return nil
	}
	if err != nil {
		return err
	}
	return r.Send(ctx, ev)
}

// render prints the current screen. It runs on the runner goroutine.
func (u *UI) render(ctx context.Context, r *session.Runner) {
	_ = r.View(ctx, func(s *session.Session) { u.renderSession(ctx, s) })
}

func (u *UI) renderSession(ctx context.Context, s *session.Session) {
	u.host.clear()
	exam := s.Exam()
	answered, total := s.Progress()
	u.println(i18n.Td(ctx, "ExamHeader", map[string]any{
		"Title": exam.Title, "Duration": exam.Duration, "Count": total,
	}))
	u.println(i18n.Td(ctx, "TimeLeft", map[string]any{"Time": clock(s.TimeLeft())}) + "   " +
		i18n.Td(ctx, "Progress", map[string]any{"Answered": answered, "Total": total}))
	u.println(questionMap(s))

	q, ok := s.Current()
	if !ok {
		u.println(i18n.T(ctx, "Loading"))
		return
	}
	section := q.Section
	if section == "" {
		section = i18n.T(ctx, "SectionGeneral")
	}
	u.println("")
	u.println(section)
	u.println(i18n.Td(ctx, "QuestionHeader", map[string]any{"N": s.CurrentIndex() + 1, "Total": total}))
	u.println(q.Question)

	a := s.Answers()[q.ID]
	switch q.Type {
	case model.TypeChoice:
		chosen, _ := a.Str()
		for i, opt := range q.Options {
			mark := " "
			if opt == chosen {
				mark = "x"
			}
			u.printf("  [%s] %c. %s\n", mark, 'A'+i, opt)
		}
	case model.TypeGroup:
		given, _ := a.Statements()
		for i, sq := range q.SubQuestions {
			mark := "   "
			if v, ok := given[sq.ID]; ok {
				mark = u.truthLabel(ctx, v)
			}
			u.printf("  %d) %s  [%s]\n", i+1, sq.Content, mark)
		}
	case model.TypeText:
		if text, _ := a.Str(); strings.TrimSpace(text) != "" {
			u.println(i18n.Td(ctx, "YourAnswer", map[string]any{"Answer": text}))
		} else {
			u.println(i18n.T(ctx, "NotAnswered"))
		}
	}

	if s.WarningShowing() {
		u.println("")
		u.println(i18n.Td(ctx, "ViolationWarning", map[string]any{"Count": s.Violations()}))
	}
	if s.Confirming() {
		u.println("")
		if n := s.Unanswered(); n > 0 {
			u.println(i18n.Tp(ctx, "UnansweredConfirm", n))
		} else {
			u.println(i18n.T(ctx, "ConfirmSubmit"))
		}
	}
}

// questionMap shows one cell per question, marking answered ones and
// the current one.
func questionMap(s *session.Session) string {
	var b strings.Builder
	n := len(s.Exam().Questions)
	for i := range n {
		cell := fmt.Sprintf("%d", i+1)
		if s.IsAnswered(i) {
			cell += "*"
		}
		if i == s.CurrentIndex() {
			cell = "[" + cell + "]"
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(cell)
	}
	return b.String()
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (u *UI) truthLabel(ctx context.Context, v bool) string {
	if v {
		return i18n.T(ctx, "StatementTrue")
	}
	return i18n.T(ctx, "StatementFalse")
}

// announce prints the outcome of a submission.
func (u *UI) announce(ctx context.Context, s *session.Session, saveErr error) {
	res, ok := s.Result()
	if !ok {
		return
	}
	if res.TimeSpent >= s.Exam().DurationSeconds() {
		u.println(i18n.T(ctx, "TimeUp"))
	} else {
		u.println(i18n.T(ctx, "Submitted"))
	}
	if saveErr != nil {
		u.logger.Error("result not saved", "error", saveErr)
		u.println(i18n.T(ctx, "SaveFailed"))
	}
}

// finished shows the result screen and handles its commands. It reports
// true when the student is done.
func (u *UI) finished(ctx context.Context, s *session.Session, lines <-chan string) (bool, error) {
	res, _ := s.Result()
	u.println(i18n.Td(ctx, "ResultSummary", map[string]any{
		"Score":   fmt.Sprintf("%.2f", res.Score),
		"Total":   fmt.Sprintf("%g", res.Total),
		"Correct": res.Counts.Correct,
		"Wrong":   res.Counts.Wrong,
		"Empty":   res.Counts.Empty,
	}))
	if res.Violations > 0 {
		u.println(i18n.Tp(ctx, "ViolationsReported", res.Violations))
	}
	if n, unlimited := attempt.Remaining(s.Exam().MaxAttempts, s.AttemptsUsed()); !unlimited {
		u.println(i18n.Tp(ctx, "AttemptsLeft", n))
	}
	help := "FinishedHelp"
	if !s.CanRetry() {
		help = "FinishedHelpNoRetry"
	}
	u.println(i18n.T(ctx, help))

	for {
		line, ok := u.ask(ctx, lines, "> ")
		if !ok {
			return true, nil
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch strings.ToLower(cmd) {
		case "review", "r":
			u.review(ctx, s.Exam(), res)
		case "hint":
			u.hint(ctx, s.Exam(), res, strings.TrimSpace(rest))
		case "retry":
			if err := s.Dispatch(ctx, session.Retry{}); err != nil {
				u.println(u.message(ctx, err))
				continue
			}
			return false, nil
		case "exit", "q", "quit":
			_ = s.Dispatch(ctx, session.Exit{})
			u.println(i18n.T(ctx, "Goodbye"))
			return true, nil
		default:
			u.println(i18n.T(ctx, help))
		}
	}
}

func (u *UI) review(ctx context.Context, exam model.ExamConfig, res model.StudentResult) {
	if !exam.AllowReview {
		u.println(i18n.T(ctx, "ReviewClosed"))
		return
	}
	for i, q := range exam.Questions {
		u.println("")
		u.println(i18n.Td(ctx, "QuestionHeader", map[string]any{"N": i + 1, "Total": len(exam.Questions)}))
		u.println(q.Question)
		a := res.Answers[q.ID]
		switch q.Type {
		case model.TypeGroup:
			given, _ := a.Statements()
			for j, sq := range q.SubQuestions {
				mine := "-"
				if v, ok := given[sq.ID]; ok {
					mine = u.truthLabel(ctx, v)
				}
				u.printf("  %d) %s  %s / %s\n", j+1, sq.Content, mine, u.truthLabel(ctx, sq.CorrectAnswer))
			}
		default:
			mine, _ := a.Str()
			if strings.TrimSpace(mine) == "" {
				mine = i18n.T(ctx, "NotAnswered")
			}
			u.println(i18n.Td(ctx, "YourAnswer", map[string]any{"Answer": mine}))
			u.println(i18n.Td(ctx, "CorrectAnswer", map[string]any{"Answer": q.Answer}))
		}
	}
}

func (u *UI) hint(ctx context.Context, exam model.ExamConfig, res model.StudentResult, arg string) {
	if u.hints == nil || !u.hints.Configured() {
		u.println(i18n.T(ctx, "HintUnavailable"))
		return
	}
	k, err := number(arg)
	if err != nil || k > len(exam.Questions) {
		u.println(i18n.T(ctx, "UnknownCommand"))
		return
	}
	text, err := u.hints.ExplainResult(ctx, exam, res, exam.Questions[k-1].ID)
	if errors.Is(err, hint.ErrNotAllowed) {
		u.println(i18n.T(ctx, "HintClosed"))
		return
	}
	if err != nil {
		u.logger.Warn("explanation failed", "error", err)
		u.println(i18n.T(ctx, "HintBusy"))
		return
	}
	u.println(text)
}

// message localizes an error for the student.
func (u *UI) message(ctx context.Context, err error) string {
	var exhausted *attempt.ExhaustedError
	switch {
	case errors.Is(err, session.ErrWrongCode):
		return i18n.T(ctx, "WrongCode")
	case errors.Is(err, session.ErrNotPublished):
		return i18n.T(ctx, "NotPublished")
	case errors.Is(err, session.ErrIdentityRequired):
		return i18n.T(ctx, "IdentityRequired")
	case errors.As(err, &exhausted):
		return i18n.Td(ctx, "AttemptsExhausted", map[string]any{"Used": exhausted.Used, "Max": exhausted.Max})
	case errors.Is(err, session.ErrWarningShowing):
		return i18n.T(ctx, "AcknowledgeFirst")
	case errors.Is(err, session.ErrNotConfirming):
		return i18n.T(ctx, "NotConfirming")
	case errors.Is(err, answers.ErrTypeMismatch), errors.Is(err, answers.ErrUnknownOption),
		errors.Is(err, answers.ErrUnknownSubQuestion), errors.Is(err, errBadArgument),
		errors.Is(err, session.ErrNoQuestion):
		return i18n.T(ctx, "InvalidAnswer")
	case errors.Is(err, errUnknownCommand):
		return i18n.T(ctx, "UnknownCommand")
	}
	return err.Error()
}

func (u *UI) ask(ctx context.Context, lines <-chan string, prompt string) (string, bool) {
	u.printf("%s", prompt)
	select {
	case line, ok := <-lines:
		if !ok {
			return "", false
		}
		clean, _, _ := scanInput(line)
		return clean, true
	case <-ctx.Done():
		return "", false
	}
}

func (u *UI) println(s string) { fmt.Fprintln(u.out, s) }

func (u *UI) printf(format string, args ...any) { fmt.Fprintf(u.out, format, args...) }

// readLines delivers input lines until EOF. The reading goroutine may
// outlive ctx while blocked on a read.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
