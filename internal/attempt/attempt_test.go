package attempt

import (
	"errors"
	"testing"

	"github.com/pavelanni/quizmaster/internal/model"
)

func TestKey(t *testing.T) {
	if got, want := Key("  Nguyen An ", "10A1 "), "nguyen an|10a1"; got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestAttemptsUsed(t *testing.T) {
	results := []model.StudentResult{
		{Name: "An", ClassName: "10A"},
		{Name: " an ", ClassName: "10a"},
		{Name: "An", ClassName: "10B"},
		{Name: "Binh", ClassName: "10A"},
	}
	tests := []struct {
		name, class string
		want        int
	}{
		{"AN", " 10A", 2},
		{"An", "10B", 1},
		{"Chi", "10A", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.class, func(t *testing.T) {
			if got := AttemptsUsed(results, tt.name, tt.class); got != tt.want {
				t.Errorf("AttemptsUsed = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAttemptsUsedByStudentID(t *testing.T) {
	results := []model.StudentResult{
		{Name: "An", ClassName: "10A", StudentID: "s1"},
		{Name: "An (renamed)", ClassName: "10A", StudentID: "s1"},
		{Name: "An", ClassName: "10A", StudentID: "s2"},
		{Name: "An", ClassName: "10A"},
	}
	id := model.Identity{StudentID: "s1", Name: "An", ClassName: "10A"}
	if got := AttemptsUsedBy(results, id); got != 3 {
		t.Errorf("AttemptsUsedBy = %d, want 3", got)
	}

	guest := model.Identity{Name: "An", ClassName: "10A"}
	if got := AttemptsUsedBy(results, guest); got != 3 {
		t.Errorf("AttemptsUsedBy(guest) = %d, want 3", got)
	}
}

func TestCanAttempt(t *testing.T) {
	tests := []struct {
		max, used int
		want      bool
	}{
		{0, 0, true},
		{0, 100, true},
		{1, 0, true},
		{1, 1, false},
		{3, 2, true},
		{3, 3, false},
	}
	for _, tt := range tests {
		if got := CanAttempt(tt.max, tt.used); got != tt.want {
			t.Errorf("CanAttempt(%d, %d) = %v, want %v", tt.max, tt.used, got, tt.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	if _, unlimited := Remaining(0, 5); !unlimited {
		t.Error("Remaining(0, 5) should be unlimited")
	}
	if n, _ := Remaining(3, 1); n != 2 {
		t.Errorf("Remaining(3, 1) = %d, want 2", n)
	}
	if n, _ := Remaining(2, 5); n != 0 {
		t.Errorf("Remaining(2, 5) = %d, want 0", n)
	}
}

func TestCheck(t *testing.T) {
	exam := model.ExamConfig{
		MaxAttempts: 1,
		Results:     []model.StudentResult{{Name: "An", ClassName: "10A"}},
	}
	err := Check(exam, model.Identity{Name: "an", ClassName: "10a"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Check error = %v, want ErrExhausted", err)
	}
	var ee *ExhaustedError
	if !errors.As(err, &ee) || ee.Used != 1 || ee.Max != 1 {
		t.Errorf("ExhaustedError = %+v", ee)
	}

	if err := Check(exam, model.Identity{Name: "Binh", ClassName: "10A"}); err != nil {
		t.Errorf("Check for new student: %v", err)
	}
	exam.MaxAttempts = 0
	if err := Check(exam, model.Identity{Name: "An", ClassName: "10A"}); err != nil {
		t.Errorf("Check with unlimited attempts: %v", err)
	}
}
