package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pavelanni/quizmaster/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testExam(id string, created time.Time) model.ExamConfig {
	return model.ExamConfig{
		ID:           id,
		Code:         "CODE-" + id,
		Title:        "Exam " + id,
		ClassName:    "10A",
		SecurityCode: "ABC123",
		Duration:     45,
		MaxAttempts:  2,
		AllowReview:  true,
		Questions: []model.Question{
			{ID: "1", Type: model.TypeChoice, Question: "2+2?", Options: []string{"3", "4"}, Answer: "4"},
			{ID: "2", Type: model.TypeGroup, SubQuestions: []model.SubQuestion{{ID: "a", Content: "x", CorrectAnswer: true}}},
			{ID: "3", Type: model.TypeText, Answer: "42"},
		},
		CreatedAt: created,
	}
}

func testResult(id, name string, date time.Time) model.StudentResult {
	return model.StudentResult{
		ID:        id,
		Name:      name,
		ClassName: "10A",
		Score:     2.5,
		Total:     9,
		Date:      date,
		TimeSpent: 120,
		Counts:    model.Counts{Correct: 1, Wrong: 1, Empty: 1},
		Answers: model.AnswerSet{
			"1": model.ChoiceAnswer("4"),
			"2": model.GroupAnswer(map[string]bool{"a": false}),
		},
		Breakdown: []model.QuestionResult{{QuestionID: "1", Type: model.TypeChoice, Outcome: model.OutcomeCorrect, Credit: 5, MaxCredit: 5}},
	}
}

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty DB returns an empty list.
	exams, err := s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 0 {
		t.Fatalf("expected empty list, got %d", len(exams))
	}

	exam := testExam("e1", base)
	cfg := model.GradingConfig{Part1Total: 6, Part2Total: 2, Part3Total: 2, GroupGradingMethod: model.GroupEqual}
	exam.GradingConfig = &cfg
	if err := s.PutExam(ctx, exam); err != nil {
		t.Fatalf("PutExam: %v", err)
	}

	got, err := s.GetExam(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Title != "Exam e1" || got.SecurityCode != "ABC123" || got.MaxAttempts != 2 || !got.AllowReview || got.AllowHints {
		t.Errorf("scalar fields not round-tripped: %+v", got)
	}
	if len(got.Questions) != 3 || got.Questions[1].SubQuestions[0].ID != "a" || got.Questions[0].Answer != "4" {
		t.Errorf("questions not round-tripped: %+v", got.Questions)
	}
	if got.GradingConfig == nil || *got.GradingConfig != cfg {
		t.Errorf("grading = %+v, want %+v", got.GradingConfig, cfg)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, base)
	}

	// Update in place.
	exam.Title = "Renamed"
	exam.GradingConfig = nil
	if err := s.PutExam(ctx, exam); err != nil {
		t.Fatalf("PutExam update: %v", err)
	}
	got, _ = s.GetExam(ctx, "e1")
	if got.Title != "Renamed" || got.GradingConfig != nil {
		t.Errorf("update not applied: title=%q grading=%v", got.Title, got.GradingConfig)
	}

	// Not found.
	if _, err := s.GetExam(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExam(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteExam(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if err := s.DeleteExam(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteExam error = %v, want ErrNotFound", err)
	}
}

func TestListExamsOrderAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testExam("old", base)
	newer := testExam("new", base.Add(time.Hour))
	newer.Results = []model.StudentResult{
		testResult("r2", "Binh", base.Add(2*time.Hour)),
		testResult("r1", "An", base.Add(time.Hour)),
	}
	for _, e := range []model.ExamConfig{older, newer} {
		if err := s.PutExam(ctx, e); err != nil {
			t.Fatalf("PutExam(%s): %v", e.ID, err)
		}
	}

	exams, err := s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 2 || exams[0].ID != "new" || exams[1].ID != "old" {
		t.Fatalf("exam order = %v", examIDs(exams))
	}
	rs := exams[0].Results
	if len(rs) != 2 || rs[0].ID != "r2" || rs[1].ID != "r1" {
		t.Fatalf("results = %+v, want [r2 r1]", rs)
	}
	if len(exams[1].Results) != 0 {
		t.Errorf("old exam has %d results, want 0", len(exams[1].Results))
	}

	r := rs[1]
	if r.Name != "An" || r.Score != 2.5 || r.Counts != (model.Counts{Correct: 1, Wrong: 1, Empty: 1}) || r.TimeSpent != 120 {
		t.Errorf("result fields not round-tripped: %+v", r)
	}
	if v, _ := r.Answers["1"].Str(); v != "4" {
		t.Errorf("choice answer = %q, want 4", v)
	}
	if g, ok := r.Answers["2"].Statements(); !ok || g["a"] {
		t.Errorf("group answer = %v", r.Answers["2"])
	}
	if len(r.Breakdown) != 1 || r.Breakdown[0].Outcome != model.OutcomeCorrect {
		t.Errorf("breakdown = %+v", r.Breakdown)
	}
}

func examIDs(exams []model.ExamConfig) []string {
	ids := make([]string, len(exams))
	for i, e := range exams {
		ids[i] = e.ID
	}
	return ids
}

func TestAppendResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exam := testExam("e1", base)
	exam.Results = []model.StudentResult{testResult("r1", "An", base)}
	if err := s.PutExam(ctx, exam); err != nil {
		t.Fatalf("PutExam: %v", err)
	}
	if err := s.AppendResult(ctx, "e1", testResult("r2", "An", base.Add(time.Minute))); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}

	rs, err := s.ListResults(ctx, "e1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(rs) != 2 || rs[0].ID != "r2" {
		t.Errorf("results = %+v, want r2 first", rs)
	}

	if err := s.AppendResult(ctx, "missing", testResult("r3", "An", base)); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendResult(missing) error = %v, want ErrNotFound", err)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := testExam("e1", base)
	e2 := testExam("e2", base)
	if err := s.PutExam(ctx, e1); err != nil {
		t.Fatal(err)
	}
	if err := s.PutExam(ctx, e2); err != nil {
		t.Fatal(err)
	}
	submissions := []struct{ exam, id, name string }{
		{"e1", "r1", "An"},
		{"e1", "r2", "Binh"},
		{"e2", "r3", "An"},
		{"e1", "r4", " an "},
	}
	for i, sub := range submissions {
		if err := s.AppendResult(ctx, sub.exam, testResult(sub.id, sub.name, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AppendResult(%s): %v", sub.id, err)
		}
	}

	rows, err := s.ExportResults(ctx)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	want := []struct {
		id      string
		exam    string
		attempt int
	}{
		{"r4", "CODE-e1", 2},
		{"r3", "CODE-e2", 1},
		{"r2", "CODE-e1", 1},
		{"r1", "CODE-e1", 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].ID != w.id || rows[i].ExamCode != w.exam || rows[i].Attempt != w.attempt {
			t.Errorf("row %d = {%s %s %d}, want %+v", i, rows[i].ID, rows[i].ExamCode, rows[i].Attempt, w)
		}
	}
}

func TestStudentsCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	roster := []model.Student{
		{Name: "Tran Binh", ClassName: "10B", Email: "binh@school.edu"},
		{Name: " Nguyen An ", ClassName: "10A", Email: "An@School.edu"},
		{Name: "Le Chi", ClassName: "10A"},
	}
	var created []model.Student
	for _, st := range roster {
		c, err := s.CreateStudent(ctx, st)
		if err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
		if c.ID == "" {
			t.Fatal("CreateStudent did not assign an id")
		}
		created = append(created, c)
	}

	list, err := s.ListStudents(ctx)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	var names []string
	for _, st := range list {
		names = append(names, st.Name)
	}
	if fmt.Sprint(names) != "[Le Chi Nguyen An Tran Binh]" {
		t.Errorf("roster order = %v", names)
	}

	found, err := s.FindStudentByEmail(ctx, "  an@school.EDU ")
	if err != nil {
		t.Fatalf("FindStudentByEmail: %v", err)
	}
	if found == nil || found.Name != "Nguyen An" {
		t.Errorf("FindStudentByEmail = %+v", found)
	}
	if found, _ := s.FindStudentByEmail(ctx, "nobody@school.edu"); found != nil {
		t.Errorf("expected nil for unknown e-mail, got %+v", found)
	}
	if found, _ := s.FindStudentByEmail(ctx, ""); found != nil {
		t.Errorf("expected nil for empty e-mail, got %+v", found)
	}

	upd := created[2]
	upd.Email = "chi@school.edu"
	if err := s.UpdateStudent(ctx, upd); err != nil {
		t.Fatalf("UpdateStudent: %v", err)
	}
	if found, _ := s.FindStudentByEmail(ctx, "chi@school.edu"); found == nil || found.ID != upd.ID {
		t.Errorf("updated e-mail not found: %+v", found)
	}

	if err := s.DeleteStudent(ctx, created[0].ID); err != nil {
		t.Fatalf("DeleteStudent: %v", err)
	}
	if err := s.DeleteStudent(ctx, created[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteStudent error = %v, want ErrNotFound", err)
	}
	count, err := s.StudentCount(ctx)
	if err != nil {
		t.Fatalf("StudentCount: %v", err)
	}
	if count != 2 {
		t.Errorf("StudentCount = %d, want 2", count)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetMetadata(ctx, "link_base")
	if err != nil || v != "" {
		t.Fatalf("GetMetadata(missing) = %q, %v", v, err)
	}
	if err := s.SetMetadata(ctx, "link_base", "https://a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMetadata(ctx, "link_base", "https://b"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetMetadata(ctx, "link_base"); v != "https://b" {
		t.Errorf("GetMetadata = %q, want https://b", v)
	}
}
