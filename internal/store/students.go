package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizmaster/internal/model"
)

// CreateStudent inserts a roster entry. An empty ID is filled in.
func (s *Store) CreateStudent(ctx context.Context, st model.Student) (model.Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Name = strings.TrimSpace(st.Name)
	st.ClassName = strings.TrimSpace(st.ClassName)
	st.Email = strings.TrimSpace(st.Email)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, name, class_name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.ClassName, st.Email, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create student", "name", st.Name, "error", err)
		return st, err
	}
	slog.Debug("created student", "id", st.ID, "name", st.Name, "class", st.ClassName)
	return st, nil
}

// UpdateStudent replaces the fields of an existing roster entry.
func (s *Store) UpdateStudent(ctx context.Context, st model.Student) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET name = ?, class_name = ?, email = ? WHERE id = ?`,
		strings.TrimSpace(st.Name), strings.TrimSpace(st.ClassName), strings.TrimSpace(st.Email), st.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("student %s: %w", st.ID, ErrNotFound)
	}
	return nil
}

// ListStudents returns the roster ordered by class and name.
func (s *Store) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, class_name, email FROM students ORDER BY class_name, name, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.ClassName, &st.Email); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// FindStudentByEmail returns the roster entry with the given e-mail,
// compared case-insensitively, or nil if there is none.
func (s *Store) FindStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, class_name, email FROM students WHERE lower(email) = lower(?) ORDER BY id LIMIT 1`, email,
	).Scan(&st.ID, &st.Name, &st.ClassName, &st.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteStudent removes a roster entry.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	return nil
}

// StudentCount returns the number of roster entries.
func (s *Store) StudentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}
