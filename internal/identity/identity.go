// Package identity turns external sign-in tokens and assignment links
// into the identity of the person taking an exam.
package identity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/quizmaster/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSecret     = errors.New("token secret is not configured")
)

// Claims are the fields of a student sign-in token.
type Claims struct {
	Name      string `json:"name"`
	ClassName string `json:"class"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 student tokens with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for a roster student. A zero ttl issues a token
// that never expires.
func (t *Tokens) Issue(st model.Student, ttl time.Duration) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNoSecret
	}
	now := t.now()
	claims := &Claims{
		Name:      st.Name,
		ClassName: st.ClassName,
		Email:     st.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  st.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify checks a token and returns the authenticated identity it names.
func (t *Tokens) Verify(token string) (model.Identity, error) {
	if len(t.secret) == 0 {
		return model.Identity{}, ErrNoSecret
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	id := model.Identity{
		StudentID:     claims.Subject,
		Name:          strings.TrimSpace(claims.Name),
		ClassName:     strings.TrimSpace(claims.ClassName),
		Email:         strings.TrimSpace(claims.Email),
		Authenticated: true,
	}
	return id, nil
}

// MatchRoster fills name and class from the roster entry whose e-mail
// matches the identity's, ignoring case and surrounding space. Without a
// match the identity is returned unchanged.
func MatchRoster(id model.Identity, roster []model.Student) model.Identity {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return id
	}
	for _, st := range roster {
		if strings.ToLower(strings.TrimSpace(st.Email)) != email {
			continue
		}
		id.Name = st.Name
		id.ClassName = st.ClassName
		if id.StudentID == "" {
			id.StudentID = st.ID
		}
		return id
	}
	return id
}

// DeepLink is an exam assignment carried in a URL query string.
type DeepLink struct {
	ExamID    string
	Code      string
	Name      string
	ClassName string
}

// ParseDeepLink reads examId, code, name and class from a full URL or a
// bare query string.
func ParseDeepLink(raw string) (DeepLink, error) {
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}
	v, err := url.ParseQuery(query)
	if err != nil {
		return DeepLink{}, fmt.Errorf("parse link: %w", err)
	}
	dl := DeepLink{
		ExamID:    strings.TrimSpace(v.Get("examId")),
		Code:      strings.TrimSpace(v.Get("code")),
		Name:      strings.TrimSpace(v.Get("name")),
		ClassName: strings.TrimSpace(v.Get("class")),
	}
	if dl.ExamID == "" {
		return dl, errors.New("parse link: missing examId")
	}
	return dl, nil
}

// Identity returns the unauthenticated identity prefilled by the link.
func (d DeepLink) Identity() model.Identity {
	return model.Identity{Name: d.Name, ClassName: d.ClassName}
}

// AssignmentLink builds the link that opens an exam for one student with
// the security code and identity prefilled.
func AssignmentLink(base string, exam model.ExamConfig, st model.Student) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse link base: %w", err)
	}
	q := u.Query()
	q.Set("examId", exam.ID)
	if exam.SecurityCode != "" {
		q.Set("code", exam.SecurityCode)
	}
	q.Set("name", st.Name)
	q.Set("class", st.ClassName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
