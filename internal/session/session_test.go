package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pavelanni/quizmaster/internal/attempt"
	"github.com/pavelanni/quizmaster/internal/integrity"
	"github.com/pavelanni/quizmaster/internal/model"
)

type fakeStore struct {
	exams   map[string]model.ExamConfig
	puts    int
	putErr  error
	listErr error
}

func newFakeStore(exams ...model.ExamConfig) *fakeStore {
	st := &fakeStore{exams: map[string]model.ExamConfig{}}
	for _, e := range exams {
		st.exams[e.ID] = e
	}
	return st
}

func (f *fakeStore) ListExams(context.Context) ([]model.ExamConfig, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.ExamConfig, 0, len(f.exams))
	for _, e := range f.exams {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) PutExam(_ context.Context, e model.ExamConfig) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.exams[e.ID] = e
	return nil
}

type appendStore struct {
	*fakeStore
	appended []model.StudentResult
}

func (a *appendStore) AppendResult(_ context.Context, examID string, r model.StudentResult) error {
	a.appended = append(a.appended, r)
	return nil
}

type fakeHost struct{ requests int }

func (h *fakeHost) RequestFullscreen(context.Context) error {
	h.requests++
	return nil
}

func testExam(nQuestions int) model.ExamConfig {
	exam := model.ExamConfig{
		ID:           "exam-1",
		Code:         "MATH10",
		Title:        "Algebra",
		SecurityCode: "ABC123",
		Duration:     1,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	for i := range nQuestions {
		exam.Questions = append(exam.Questions, model.Question{
			ID:      model.QuestionID(fmt.Sprintf("q%d", i)),
			Type:    model.TypeChoice,
			Options: []string{"A", "B", "C", "D"},
			Answer:  "A",
		})
	}
	return exam
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, exam model.ExamConfig, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	s, err := New(exam, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustDispatch(t *testing.T, s *Session, ev Event) {
	t.Helper()
	if err := s.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch(%T): %v", ev, err)
	}
}

func startPlaying(t *testing.T, s *Session) {
	t.Helper()
	mustDispatch(t, s, Start{Name: "An", ClassName: "10A", Code: "ABC123"})
	if s.State() != StatePlaying {
		t.Fatalf("state = %s, want playing", s.State())
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name    string
		exam    func() model.ExamConfig
		start   Start
		wantErr error
	}{
		{"ok", func() model.ExamConfig { return testExam(2) }, Start{Name: "An", ClassName: "10A", Code: "ABC123"}, nil},
		{"code case-insensitive", func() model.ExamConfig { return testExam(2) }, Start{Name: "An", ClassName: "10A", Code: " abc123 "}, nil},
		{"wrong code", func() model.ExamConfig { return testExam(2) }, Start{Name: "An", ClassName: "10A", Code: "XYZ999"}, ErrWrongCode},
		{"missing class", func() model.ExamConfig { return testExam(2) }, Start{Name: "An", ClassName: "  ", Code: "ABC123"}, ErrIdentityRequired},
		{"not published", func() model.ExamConfig {
			e := testExam(2)
			e.SecurityCode = ""
			return e
		}, Start{Name: "An", ClassName: "10A", Code: ""}, ErrNotPublished},
		{"attempts exhausted", func() model.ExamConfig {
			e := testExam(2)
			e.MaxAttempts = 1
			e.Results = []model.StudentResult{{Name: " an", ClassName: "10a "}}
			return e
		}, Start{Name: "An", ClassName: "10A", Code: "ABC123"}, attempt.ErrExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.exam())
			err := s.Dispatch(context.Background(), tt.start)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start error = %v, want %v", err, tt.wantErr)
			}
			want := StatePlaying
			if tt.wantErr != nil {
				want = StateStart
			}
			if s.State() != want {
				t.Errorf("state = %s, want %s", s.State(), want)
			}
		})
	}
}

func TestStartInitializesAttempt(t *testing.T) {
	host := &fakeHost{}
	s := newTestSession(t, testExam(3), WithHost(host))
	startPlaying(t, s)

	if s.TimeLeft() != 60 {
		t.Errorf("TimeLeft = %d, want 60", s.TimeLeft())
	}
	if s.CurrentIndex() != 0 || s.Violations() != 0 || len(s.Answers()) != 0 {
		t.Errorf("attempt not fresh: idx=%d violations=%d answers=%v", s.CurrentIndex(), s.Violations(), s.Answers())
	}
	if host.requests != 1 {
		t.Errorf("fullscreen requests = %d, want 1", host.requests)
	}
}

func TestTimeoutAutoSubmitsOnce(t *testing.T) {
	exam := testExam(10)
	st := newFakeStore(exam)
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)

	for i := range 8 {
		mustDispatch(t, s, Goto{Index: i})
		mustDispatch(t, s, SelectOption{Option: "A"})
	}
	for range 59 {
		mustDispatch(t, s, Tick{})
	}
	if s.State() != StatePlaying || s.TimeLeft() != 1 {
		t.Fatalf("after 59 ticks: state=%s timeLeft=%d", s.State(), s.TimeLeft())
	}
	mustDispatch(t, s, Tick{})
	if s.State() != StateFinished {
		t.Fatalf("state = %s, want finished", s.State())
	}

	// Further ticks do nothing.
	for range 5 {
		mustDispatch(t, s, Tick{})
	}

	res, ok := s.Result()
	if !ok {
		t.Fatal("no result after timeout")
	}
	if res.TimeSpent != 60 {
		t.Errorf("TimeSpent = %d, want 60", res.TimeSpent)
	}
	if res.Counts != (model.Counts{Correct: 8, Empty: 2}) {
		t.Errorf("counts = %+v", res.Counts)
	}
	if !res.Date.Equal(fixedNow) || res.Name != "An" || res.ClassName != "10A" || res.ID == "" {
		t.Errorf("result metadata = %+v", res)
	}
	if st.puts != 1 {
		t.Errorf("PutExam called %d times, want 1", st.puts)
	}
	if got := st.exams[exam.ID].Results; len(got) != 1 || got[0].ID != res.ID {
		t.Errorf("stored results = %+v", got)
	}
}

func TestManualSubmit(t *testing.T) {
	exam := testExam(3)
	st := newFakeStore(exam)
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)

	mustDispatch(t, s, SelectOption{Option: "A"})
	for range 10 {
		mustDispatch(t, s, Tick{})
	}

	if err := s.Dispatch(context.Background(), ConfirmSubmit{}); !errors.Is(err, ErrNotConfirming) {
		t.Fatalf("ConfirmSubmit without request: %v", err)
	}

	mustDispatch(t, s, RequestSubmit{})
	if !s.Confirming() || s.Unanswered() != 2 {
		t.Fatalf("confirming=%v unanswered=%d", s.Confirming(), s.Unanswered())
	}
	mustDispatch(t, s, CancelSubmit{})
	if s.Confirming() || s.State() != StatePlaying {
		t.Fatalf("cancel did not resume: confirming=%v state=%s", s.Confirming(), s.State())
	}

	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	res, _ := s.Result()
	if res.TimeSpent != 10 {
		t.Errorf("TimeSpent = %d, want 10", res.TimeSpent)
	}

	if err := s.Dispatch(context.Background(), ConfirmSubmit{}); !errors.Is(err, ErrSubmitting) {
		t.Errorf("second ConfirmSubmit error = %v, want ErrSubmitting", err)
	}
	if err := s.Dispatch(context.Background(), SelectOption{Option: "B"}); !errors.Is(err, ErrSubmitting) {
		t.Errorf("answer after submit error = %v, want ErrSubmitting", err)
	}
	if st.puts != 1 {
		t.Errorf("PutExam called %d times, want 1", st.puts)
	}
}

func TestTimeoutWhileConfirming(t *testing.T) {
	exam := testExam(2)
	st := newFakeStore(exam)
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)

	mustDispatch(t, s, SelectOption{Option: "A"})
	mustDispatch(t, s, RequestSubmit{})
	for range 60 {
		mustDispatch(t, s, Tick{})
	}
	if s.State() != StateFinished || s.Confirming() {
		t.Fatalf("after timeout: state=%s confirming=%v", s.State(), s.Confirming())
	}

	// The student confirms the dialog that was open when time ran out.
	if err := s.Dispatch(context.Background(), ConfirmSubmit{}); !errors.Is(err, ErrSubmitting) {
		t.Errorf("late ConfirmSubmit error = %v, want ErrSubmitting", err)
	}

	res, ok := s.Result()
	if !ok || res.TimeSpent != 60 || res.Counts.Correct != 1 {
		t.Errorf("result = %+v", res)
	}
	if st.puts != 1 {
		t.Errorf("PutExam called %d times, want 1", st.puts)
	}
	if got := st.exams[exam.ID].Results; len(got) != 1 || got[0].ID != res.ID {
		t.Errorf("stored results = %+v", got)
	}
}

func TestResultsArePrepended(t *testing.T) {
	exam := testExam(1)
	exam.Results = []model.StudentResult{{ID: "older", Name: "Binh", ClassName: "10A"}}
	st := newFakeStore(exam)
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})

	got := st.exams[exam.ID].Results
	if len(got) != 2 || got[1].ID != "older" || got[0].Name != "An" {
		t.Errorf("stored results = %+v, want new result first", got)
	}
	if len(s.Exam().Results) != 2 {
		t.Errorf("session exam has %d results, want 2", len(s.Exam().Results))
	}
}

func TestStoreFailureKeepsResult(t *testing.T) {
	exam := testExam(1)
	st := newFakeStore(exam)
	st.putErr = errors.New("disk full")
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)
	mustDispatch(t, s, RequestSubmit{})

	err := s.Dispatch(context.Background(), ConfirmSubmit{})
	var se *SaveError
	if !errors.As(err, &se) {
		t.Fatalf("ConfirmSubmit = %v, want *SaveError", err)
	}
	if s.State() != StateFinished {
		t.Errorf("state = %s, want finished", s.State())
	}
	if _, ok := s.Result(); !ok {
		t.Error("result lost after store failure")
	}
}

func TestResultAppenderIsPreferred(t *testing.T) {
	exam := testExam(1)
	st := &appendStore{fakeStore: newFakeStore(exam)}
	s := newTestSession(t, exam, WithStore(st))
	startPlaying(t, s)
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})

	if len(st.appended) != 1 {
		t.Fatalf("appended %d results, want 1", len(st.appended))
	}
	if st.puts != 0 {
		t.Errorf("PutExam called %d times, want 0", st.puts)
	}
}

func TestViolations(t *testing.T) {
	host := &fakeHost{}
	s := newTestSession(t, testExam(2), WithHost(host))
	startPlaying(t, s)

	mustDispatch(t, s, Violation{Event: integrity.Event{Kind: integrity.VisibilityLost}})
	mustDispatch(t, s, Violation{Event: integrity.Event{Kind: integrity.FullscreenExited}})
	if s.Violations() != 1 || !s.WarningShowing() {
		t.Fatalf("violations=%d warning=%v, want 1 and showing", s.Violations(), s.WarningShowing())
	}
	if err := s.Dispatch(context.Background(), SelectOption{Option: "A"}); !errors.Is(err, ErrWarningShowing) {
		t.Errorf("answer during warning error = %v, want ErrWarningShowing", err)
	}

	mustDispatch(t, s, Acknowledge{})
	if s.WarningShowing() || host.requests != 2 {
		t.Errorf("after acknowledge: warning=%v fullscreen requests=%d", s.WarningShowing(), host.requests)
	}
	mustDispatch(t, s, Deterrent{Kind: integrity.Copy})
	mustDispatch(t, s, Violation{Event: integrity.Event{Kind: integrity.WindowBlur}})
	if s.Violations() != 2 {
		t.Errorf("violations = %d, want 2", s.Violations())
	}

	mustDispatch(t, s, Acknowledge{})
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	mustDispatch(t, s, Violation{Event: integrity.Event{Kind: integrity.FullscreenExited}})
	res, _ := s.Result()
	if res.Violations != 2 || s.Violations() != 2 {
		t.Errorf("violations after submit: result=%d session=%d, want 2", res.Violations, s.Violations())
	}
}

func TestNavigationClamps(t *testing.T) {
	s := newTestSession(t, testExam(3))
	startPlaying(t, s)

	mustDispatch(t, s, Prev{})
	if s.CurrentIndex() != 0 {
		t.Errorf("Prev at start: idx = %d", s.CurrentIndex())
	}
	mustDispatch(t, s, Goto{Index: 10})
	if s.CurrentIndex() != 2 {
		t.Errorf("Goto(10): idx = %d, want 2", s.CurrentIndex())
	}
	mustDispatch(t, s, Next{})
	if s.CurrentIndex() != 2 {
		t.Errorf("Next at end: idx = %d, want 2", s.CurrentIndex())
	}
	q, ok := s.Current()
	if !ok || q.ID != "q2" {
		t.Errorf("Current = %v, %v", q.ID, ok)
	}
	mustDispatch(t, s, SelectOption{Option: "B"})
	if !s.IsAnswered(2) || s.IsAnswered(0) {
		t.Error("IsAnswered does not reflect the answer to q2")
	}
	if answered, total := s.Progress(); answered != 1 || total != 3 {
		t.Errorf("Progress = %d/%d, want 1/3", answered, total)
	}
}

func TestEmptyExamIsNeutral(t *testing.T) {
	s := newTestSession(t, testExam(0))
	startPlaying(t, s)

	if _, ok := s.Current(); ok {
		t.Error("Current reported a question for an empty exam")
	}
	mustDispatch(t, s, Next{})
	if err := s.Dispatch(context.Background(), EnterText{Text: "x"}); !errors.Is(err, ErrNoQuestion) {
		t.Errorf("answer error = %v, want ErrNoQuestion", err)
	}
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	res, _ := s.Result()
	if res.Total != 10 || res.Score != 0 {
		t.Errorf("empty exam result: score=%v total=%v", res.Score, res.Total)
	}
}

func TestAnswerValidationLeavesStateUntouched(t *testing.T) {
	s := newTestSession(t, testExam(1))
	startPlaying(t, s)
	mustDispatch(t, s, SelectOption{Option: "A"})

	if err := s.Dispatch(context.Background(), SelectOption{Option: "Z"}); err == nil {
		t.Fatal("expected error for unknown option")
	}
	if err := s.Dispatch(context.Background(), SetSubAnswer{SubID: "a", Value: true}); err == nil {
		t.Fatal("expected error for statement on a choice question")
	}
	a := s.Answers()["q0"]
	if v, _ := a.Str(); v != "A" {
		t.Errorf("answer = %q, want A", v)
	}
}

func TestExitDiscardsAttempt(t *testing.T) {
	st := newFakeStore(testExam(2))
	s := newTestSession(t, testExam(2), WithStore(st))
	startPlaying(t, s)
	mustDispatch(t, s, SelectOption{Option: "A"})
	mustDispatch(t, s, Exit{})

	if s.State() != StateStart {
		t.Fatalf("state = %s, want start", s.State())
	}
	if len(s.Answers()) != 0 || st.puts != 0 {
		t.Errorf("exit kept answers=%v puts=%d", s.Answers(), st.puts)
	}
	if _, ok := s.Result(); ok {
		t.Error("exit produced a result")
	}
}

func TestRetry(t *testing.T) {
	exam := testExam(1)
	exam.MaxAttempts = 2
	s := newTestSession(t, exam, WithStore(newFakeStore(exam)))

	startPlaying(t, s)
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	if !s.CanRetry() {
		t.Fatal("CanRetry = false after first of two attempts")
	}
	mustDispatch(t, s, Retry{})
	if s.State() != StateStart {
		t.Fatalf("state after retry = %s, want start", s.State())
	}

	startPlaying(t, s)
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	if s.CanRetry() {
		t.Fatal("CanRetry = true after last attempt")
	}
	if err := s.Dispatch(context.Background(), Retry{}); !errors.Is(err, attempt.ErrExhausted) {
		t.Errorf("Retry error = %v, want ErrExhausted", err)
	}
	if err := s.Dispatch(context.Background(), Start{Name: "an", ClassName: "10a", Code: "ABC123"}); err == nil {
		t.Error("Start from finished should fail")
	}
}

func TestRetryAuthenticatedSkipsStart(t *testing.T) {
	exam := testExam(1)
	id := model.Identity{StudentID: "s-1", Name: "An", ClassName: "10A"}
	s := newTestSession(t, exam, WithIdentity(id))

	mustDispatch(t, s, Start{Name: "ignored", ClassName: "ignored", Code: "abc123"})
	if s.Player().Name != "An" || !s.Authenticated() {
		t.Fatalf("player = %+v", s.Player())
	}
	mustDispatch(t, s, RequestSubmit{})
	mustDispatch(t, s, ConfirmSubmit{})
	res, _ := s.Result()
	if res.StudentID != "s-1" {
		t.Errorf("StudentID = %q, want s-1", res.StudentID)
	}

	mustDispatch(t, s, Retry{})
	if s.State() != StatePlaying || s.TimeLeft() != 60 {
		t.Errorf("after retry: state=%s timeLeft=%d", s.State(), s.TimeLeft())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	exam := testExam(2)
	s := newTestSession(t, exam)
	exam.Questions[0].Answer = "D"
	exam.Title = "changed"

	if s.Exam().Questions[0].Answer != "A" || s.Exam().Title != "Algebra" {
		t.Error("session exam changed with the caller's copy")
	}
	if !s.Exam().CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", s.Exam().CreatedAt)
	}
}

func TestStartSeesResultsRecordedLater(t *testing.T) {
	exam := testExam(1)
	exam.MaxAttempts = 1
	st := newFakeStore(exam)
	s := newTestSession(t, exam, WithStore(st))

	// Another session recorded an attempt after this one was created.
	stored := st.exams[exam.ID]
	st.exams[exam.ID] = stored.WithResult(model.StudentResult{Name: "An", ClassName: "10A"})

	err := s.Dispatch(context.Background(), Start{Name: "An", ClassName: "10A", Code: "ABC123"})
	if !errors.Is(err, attempt.ErrExhausted) {
		t.Errorf("Start error = %v, want ErrExhausted", err)
	}
}
