package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/quizmaster/internal/model"
)

func fixedTokens(secret string, at time.Time) *Tokens {
	t := NewTokens(secret)
	t.now = func() time.Time { return at }
	return t
}

func TestIssueVerify(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tok := fixedTokens("s3cret", at)
	st := model.Student{ID: "st-1", Name: "An", ClassName: "11A", Email: "an@school.edu"}

	s, err := tok.Issue(st, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := tok.Verify(s)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := model.Identity{StudentID: "st-1", Name: "An", ClassName: "11A", Email: "an@school.edu", Authenticated: true}
	if id != want {
		t.Errorf("Verify = %+v, want %+v", id, want)
	}

	t.Run("expired", func(t *testing.T) {
		later := fixedTokens("s3cret", at.Add(2*time.Hour))
		if _, err := later.Verify(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify = %v, want ErrInvalidToken", err)
		}
	})
	t.Run("wrong secret", func(t *testing.T) {
		other := fixedTokens("other", at)
		if _, err := other.Verify(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify = %v, want ErrInvalidToken", err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, err := tok.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify = %v, want ErrInvalidToken", err)
		}
	})
	t.Run("no expiry", func(t *testing.T) {
		s, err := tok.Issue(st, 0)
		if err != nil {
			t.Fatal(err)
		}
		far := fixedTokens("s3cret", at.AddDate(5, 0, 0))
		if _, err := far.Verify(s); err != nil {
			t.Errorf("Verify = %v", err)
		}
	})
}

func TestNoSecret(t *testing.T) {
	tok := NewTokens("")
	if _, err := tok.Issue(model.Student{}, 0); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Issue = %v", err)
	}
	if _, err := tok.Verify("x"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Verify = %v", err)
	}
}

func TestMatchRoster(t *testing.T) {
	roster := []model.Student{
		{ID: "1", Name: "An", ClassName: "11A", Email: "an@school.edu"},
		{ID: "2", Name: "Binh", ClassName: "11B"},
	}
	tests := []struct {
		name string
		in   model.Identity
		want model.Identity
	}{
		{
			"email match ignores case",
			model.Identity{Name: "Google Name", Email: "  AN@School.edu "},
			model.Identity{StudentID: "1", Name: "An", ClassName: "11A", Email: "  AN@School.edu "},
		},
		{
			"no match",
			model.Identity{Name: "X", ClassName: "Y", Email: "x@y.z"},
			model.Identity{Name: "X", ClassName: "Y", Email: "x@y.z"},
		},
		{
			"no email",
			model.Identity{Name: "X"},
			model.Identity{Name: "X"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchRoster(tt.in, roster); got != tt.want {
				t.Errorf("MatchRoster = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDeepLinks(t *testing.T) {
	exam := model.ExamConfig{ID: "e-1", SecurityCode: "ABC123"}
	st := model.Student{Name: "Nguyễn Văn An", ClassName: "11A"}

	link, err := AssignmentLink("https://exam.example.edu/take", exam, st)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(link, "https://exam.example.edu/take?") {
		t.Errorf("link = %q", link)
	}

	dl, err := ParseDeepLink(link)
	if err != nil {
		t.Fatalf("ParseDeepLink: %v", err)
	}
	want := DeepLink{ExamID: "e-1", Code: "ABC123", Name: "Nguyễn Văn An", ClassName: "11A"}
	if dl != want {
		t.Errorf("ParseDeepLink = %+v, want %+v", dl, want)
	}
	if id := dl.Identity(); id.Name != st.Name || id.Authenticated {
		t.Errorf("Identity = %+v", id)
	}

	bare, err := ParseDeepLink("examId=e-2&name=Binh#top")
	if err != nil || bare.ExamID != "e-2" || bare.Name != "Binh" || bare.Code != "" {
		t.Errorf("bare = %+v, %v", bare, err)
	}
	if _, err := ParseDeepLink("?code=ABC123"); err == nil {
		t.Error("expected error for missing examId")
	}
}
