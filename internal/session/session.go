// Package session implements the state machine of one student taking one
// exam: identity and code entry, the timed answering phase with integrity
// monitoring, and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/pavelanni/quizmaster/internal/answers"
	"github.com/pavelanni/quizmaster/internal/attempt"
	"github.com/pavelanni/quizmaster/internal/grading"
	"github.com/pavelanni/quizmaster/internal/integrity"
	"github.com/pavelanni/quizmaster/internal/model"
)

// State is a phase of the session.
type State string

const (
	StateStart    State = "start"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

var (
	ErrWrongCode        = errors.New("wrong security code")
	ErrNotPublished     = errors.New("exam is not published")
	ErrIdentityRequired = errors.New("name and class are required")
	ErrSubmitting       = errors.New("exam already submitted")
	ErrNotPlaying       = errors.New("exam is not in progress")
	ErrNotFinished      = errors.New("exam is not finished")
	ErrNoQuestion       = errors.New("no current question")
	ErrWarningShowing   = errors.New("violation warning must be acknowledged")
	ErrNotConfirming    = errors.New("submission was not requested")
)

// ExamStore is the persistence collaborator. ListExams provides the
// latest exam bank and PutExam writes back an exam with its new result.
type ExamStore interface {
	ListExams(ctx context.Context) ([]model.ExamConfig, error)
	PutExam(ctx context.Context, exam model.ExamConfig) error
}

// ResultAppender is implemented by stores that can record one result
// without rewriting the whole exam.
type ResultAppender interface {
	AppendResult(ctx context.Context, examID string, r model.StudentResult) error
}

// Option configures a Session.
type Option func(*Session)

// WithStore sets the store that receives submitted results.
func WithStore(st ExamStore) Option {
	return func(s *Session) { s.store = st }
}

// WithHost sets the environment asked to enter fullscreen.
func WithHost(h integrity.Host) Option {
	return func(s *Session) { s.host = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithIdentity sets an authenticated identity. It locks name and class,
// and lets Retry go straight back to the exam.
func WithIdentity(id model.Identity) Option {
	return func(s *Session) {
		id.Authenticated = true
		s.identity = &id
	}
}

// Session is one student's pass through one exam. It is not safe for
// concurrent use; Runner serializes access.
type Session struct {
	exam     model.ExamConfig
	store    ExamStore
	host     integrity.Host
	now      func() time.Time
	logger   *slog.Logger
	identity *model.Identity

	state      State
	player     model.Identity
	timeLeft   int
	idx        int
	answers    *answers.Store
	monitor    *integrity.Monitor
	submitting bool
	confirming bool
	result     *model.StudentResult
}

// New creates a session over a snapshot of exam.
func New(exam model.ExamConfig, opts ...Option) (*Session, error) {
	snap, err := snapshot(exam)
	if err != nil {
		return nil, err
	}
	s := &Session{
		exam:  snap,
		state: StateStart,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("exam_id", s.exam.ID)
	if s.host == nil {
		s.host = integrity.NopHost{}
	}
	return s, nil
}

func snapshot(exam model.ExamConfig) (model.ExamConfig, error) {
	var snap model.ExamConfig
	if err := copier.CopyWithOption(&snap, &exam, copier.Option{DeepCopy: true}); err != nil {
		return model.ExamConfig{}, fmt.Errorf("snapshot exam %s: %w", exam.ID, err)
	}
	snap.CreatedAt = exam.CreatedAt
	snap.Results = cloneResults(exam.Results)
	return snap, nil
}

func cloneResults(rs []model.StudentResult) []model.StudentResult {
	if rs == nil {
		return nil
	}
	out := make([]model.StudentResult, len(rs))
	for i, r := range rs {
		r.Answers = r.Answers.Clone()
		r.Breakdown = append([]model.QuestionResult(nil), r.Breakdown...)
		out[i] = r
	}
	return out
}

// Dispatch applies one event. Validation failures are returned as errors
// and leave the session unchanged.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case Start:
		return s.start(ctx, e)
	case Tick:
		return s.tick(ctx)
	case Next:
		return s.navigate(s.idx + 1)
	case Prev:
		return s.navigate(s.idx - 1)
	case Goto:
		return s.navigate(e.Index)
	case SelectOption:
		return s.answer(func(q model.Question) error { return s.answers.SetChoice(q, e.Option) })
	case EnterText:
		return s.answer(func(q model.Question) error { return s.answers.SetText(q, e.Text) })
	case SetSubAnswer:
		return s.answer(func(q model.Question) error { return s.answers.SetGroup(q, e.SubID, e.Value) })
	case ClearAnswer:
		return s.answer(func(q model.Question) error {
			s.answers.Clear(q.ID)
			return nil
		})
	case Violation:
		if s.state == StatePlaying && !s.submitting {
			s.monitor.Observe(e.Event)
		}
		return nil
	case Deterrent:
		if s.state == StatePlaying && !s.submitting {
			s.monitor.Observe(integrity.Event{Kind: e.Kind, At: s.now()})
		}
		return nil
	case Acknowledge:
		if s.state != StatePlaying || s.submitting {
			return nil
		}
		if err := s.monitor.Acknowledge(ctx); err != nil {
			s.logger.Warn("could not re-enter fullscreen", "error", err)
		}
		return nil
	case RequestSubmit:
		if err := s.requirePlaying(); err != nil {
			return err
		}
		s.confirming = true
		return nil
	case CancelSubmit:
		if err := s.requirePlaying(); err != nil {
			return err
		}
		s.confirming = false
		return nil
	case ConfirmSubmit:
		if err := s.requirePlaying(); err != nil {
			return err
		}
		if !s.confirming {
			return ErrNotConfirming
		}
		return s.finalize(ctx, s.exam.DurationSeconds()-s.timeLeft)
	case Exit:
		s.exit()
		return nil
	case Retry:
		return s.retry(ctx)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
}

func (s *Session) start(ctx context.Context, e Start) error {
	if s.state != StateStart {
		return fmt.Errorf("start exam: state is %s", s.state)
	}
	if !s.exam.Published() {
		return ErrNotPublished
	}

	player := model.Identity{
		Name:      strings.TrimSpace(e.Name),
		ClassName: strings.TrimSpace(e.ClassName),
	}
	if s.identity != nil {
		player = *s.identity
	}
	if !player.Complete() {
		return ErrIdentityRequired
	}
	if !strings.EqualFold(strings.TrimSpace(e.Code), strings.TrimSpace(s.exam.SecurityCode)) {
		return ErrWrongCode
	}

	s.refreshResults(ctx)
	if err := attempt.Check(s.exam, player); err != nil {
		return err
	}

	s.player = player
	s.begin(ctx)
	return nil
}

// refreshResults picks up results recorded since the snapshot was taken,
// so the attempt limit sees other sessions of the same student.
func (s *Session) refreshResults(ctx context.Context) {
	if s.store == nil {
		return
	}
	exams, err := s.store.ListExams(ctx)
	if err != nil {
		s.logger.Warn("could not refresh results, using snapshot", "error", err)
		return
	}
	for _, e := range exams {
		if e.ID == s.exam.ID {
			s.exam.Results = cloneResults(e.Results)
			return
		}
	}
}

func (s *Session) begin(ctx context.Context) {
	s.monitor = integrity.NewMonitor(s.host, s.logger)
	if err := s.monitor.Arm(ctx); err != nil {
		s.logger.Warn("fullscreen request failed", "error", err)
	}
	s.timeLeft = s.exam.DurationSeconds()
	s.answers = answers.New()
	s.idx = 0
	s.submitting = false
	s.confirming = false
	s.result = nil
	s.state = StatePlaying
	s.logger.Info("exam started",
		"name", s.player.Name,
		"class", s.player.ClassName,
		"questions", len(s.exam.Questions),
		"time_left", s.timeLeft)
}

func (s *Session) tick(ctx context.Context) error {
	if s.state != StatePlaying || s.submitting {
		return nil
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft > 0 {
		return nil
	}
	s.logger.Info("time is up, submitting")
	return s.finalize(ctx, s.exam.DurationSeconds())
}

func (s *Session) requirePlaying() error {
	switch {
	case s.state == StateFinished:
		return ErrSubmitting
	case s.state != StatePlaying:
		return ErrNotPlaying
	case s.submitting:
		return ErrSubmitting
	}
	return nil
}

func (s *Session) requireInteractive() error {
	if err := s.requirePlaying(); err != nil {
		return err
	}
	if s.monitor.WarningShowing() {
		return ErrWarningShowing
	}
	return nil
}

func (s *Session) navigate(to int) error {
	if err := s.requireInteractive(); err != nil {
		return err
	}
	n := len(s.exam.Questions)
	if n == 0 {
		s.idx = 0
		return nil
	}
	s.idx = min(max(to, 0), n-1)
	return nil
}

func (s *Session) answer(write func(model.Question) error) error {
	if err := s.requireInteractive(); err != nil {
		return err
	}
	q, ok := s.Current()
	if !ok {
		return ErrNoQuestion
	}
	return write(q)
}

// finalize grades the attempt and records the result. It runs at most
// once per attempt.
func (s *Session) finalize(ctx context.Context, timeSpent int) error {
	if s.submitting {
		return ErrSubmitting
	}
	s.submitting = true
	s.confirming = false
	s.monitor.Suppress()

	snap := s.answers.Snapshot()
	res := grading.Grade(s.exam.Questions, s.exam.EffectiveGrading(), snap)
	res.ID = uuid.NewString()
	res.Name = s.player.Name
	res.ClassName = s.player.ClassName
	res.StudentID = s.player.StudentID
	res.Date = s.now()
	res.TimeSpent = timeSpent
	res.Violations = s.monitor.Violations()
	res.Answers = snap

	s.result = &res
	s.state = StateFinished
	s.exam = s.exam.WithResult(res)
	s.logger.Info("exam submitted",
		"result_id", res.ID,
		"name", res.Name,
		"score", res.Score,
		"total", res.Total,
		"time_spent", res.TimeSpent,
		"violations", res.Violations)

	if err := s.persist(ctx, res); err != nil {
		s.logger.Error("saving result failed", "result_id", res.ID, "error", err)
		return &SaveError{ResultID: res.ID, Err: err}
	}
	return nil
}

// SaveError reports a submitted result that could not be stored. The
// session keeps the result either way.
type SaveError struct {
	ResultID string
	Err      error
}

func (e *SaveError) Error() string { return "save result " + e.ResultID + ": " + e.Err.Error() }

func (e *SaveError) Unwrap() error { return e.Err }

func (s *Session) persist(ctx context.Context, res model.StudentResult) error {
	if s.store == nil {
		return nil
	}
	if ra, ok := s.store.(ResultAppender); ok {
		return ra.AppendResult(ctx, s.exam.ID, res)
	}

	exams, err := s.store.ListExams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	updated := s.exam
	for _, e := range exams {
		if e.ID == s.exam.ID {
			updated = e.WithResult(res)
			break
		}
	}
	return s.store.PutExam(ctx, updated)
}

func (s *Session) exit() {
	switch s.state {
	case StatePlaying:
		s.logger.Info("exam abandoned", "name", s.player.Name)
		s.answers = nil
		s.monitor = nil
		s.timeLeft = 0
		s.idx = 0
		s.confirming = false
		s.state = StateStart
	case StateFinished:
		s.state = StateStart
	}
}

func (s *Session) retry(ctx context.Context) error {
	if s.state != StateFinished {
		return ErrNotFinished
	}
	used := attempt.AttemptsUsedBy(s.exam.Results, s.player)
	if !attempt.CanAttempt(s.exam.MaxAttempts, used) {
		return &attempt.ExhaustedError{Used: used, Max: s.exam.MaxAttempts}
	}
	if s.identity != nil {
		s.begin(ctx)
		return nil
	}
	s.state = StateStart
	return nil
}

// State returns the current phase.
func (s *Session) State() State { return s.state }

// Exam returns the session's copy of the exam, including results
// recorded by this session.
func (s *Session) Exam() model.ExamConfig { return s.exam }

// Player returns the identity of the current or last attempt.
func (s *Session) Player() model.Identity { return s.player }

// Authenticated reports whether name and class are locked by an
// authenticated identity.
func (s *Session) Authenticated() bool { return s.identity != nil }

// TimeLeft returns the remaining seconds.
func (s *Session) TimeLeft() int { return s.timeLeft }

// CurrentIndex returns the zero-based position of the current question.
func (s *Session) CurrentIndex() int { return s.idx }

// Current returns the question being answered. It reports false when
// there is nothing to show.
func (s *Session) Current() (model.Question, bool) {
	if s.state != StatePlaying || s.idx < 0 || s.idx >= len(s.exam.Questions) {
		return model.Question{}, false
	}
	return s.exam.Questions[s.idx], true
}

// Answers returns a copy of the answers so far.
func (s *Session) Answers() model.AnswerSet {
	if s.answers == nil {
		return model.AnswerSet{}
	}
	return s.answers.Snapshot()
}

// Violations returns the violations counted in the current attempt.
func (s *Session) Violations() int {
	if s.monitor == nil {
		return 0
	}
	return s.monitor.Violations()
}

// ViolationLog returns the counted violations of the current attempt.
func (s *Session) ViolationLog() []integrity.Event {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Log()
}

// WarningShowing reports whether the violation warning is up.
func (s *Session) WarningShowing() bool {
	return s.state == StatePlaying && s.monitor != nil && s.monitor.WarningShowing()
}

// Confirming reports whether a submission is waiting for confirmation.
func (s *Session) Confirming() bool { return s.confirming }

// Unanswered counts questions not yet fully answered.
func (s *Session) Unanswered() int {
	return grading.Unanswered(s.exam.Questions, s.Answers())
}

// Progress returns the number of answered questions and the total.
func (s *Session) Progress() (answered, total int) {
	total = len(s.exam.Questions)
	return total - s.Unanswered(), total
}

// IsAnswered reports whether the question at index i is fully answered.
func (s *Session) IsAnswered(i int) bool {
	if i < 0 || i >= len(s.exam.Questions) || s.answers == nil {
		return false
	}
	q := s.exam.Questions[i]
	a, _ := s.answers.Get(q.ID)
	return grading.Answered(q, a)
}

// Result returns the result of the last submitted attempt.
func (s *Session) Result() (model.StudentResult, bool) {
	if s.result == nil {
		return model.StudentResult{}, false
	}
	return *s.result, true
}

// AttemptsUsed counts the recorded attempts of the current player.
func (s *Session) AttemptsUsed() int {
	return attempt.AttemptsUsedBy(s.exam.Results, s.player)
}

// CanRetry reports whether the finished screen may offer another attempt.
func (s *Session) CanRetry() bool {
	return s.state == StateFinished && attempt.CanAttempt(s.exam.MaxAttempts, s.AttemptsUsed())
}
