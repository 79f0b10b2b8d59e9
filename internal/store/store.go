// Package store persists the exam bank, results and roster in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/quizmaster/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and rows
	// are always closed before the next query.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		class_name TEXT NOT NULL DEFAULT '',
		security_code TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 45,
		max_attempts INTEGER NOT NULL DEFAULT 0,
		grading TEXT,
		allow_hints INTEGER NOT NULL DEFAULT 0,
		allow_review INTEGER NOT NULL DEFAULT 1,
		questions TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		exam_id TEXT NOT NULL,
		name TEXT NOT NULL,
		class_name TEXT NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		total REAL NOT NULL DEFAULT 0,
		date DATETIME NOT NULL,
		time_spent INTEGER NOT NULL DEFAULT 0,
		violations INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		wrong INTEGER NOT NULL DEFAULT 0,
		empty INTEGER NOT NULL DEFAULT 0,
		answers TEXT NOT NULL DEFAULT '{}',
		breakdown TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);
	CREATE INDEX IF NOT EXISTS idx_results_exam ON results(exam_id);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const examColumns = `id, code, title, class_name, security_code, duration, max_attempts,
	grading, allow_hints, allow_review, questions, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(row scanner) (model.ExamConfig, error) {
	var (
		e         model.ExamConfig
		grading   sql.NullString
		questions string
	)
	err := row.Scan(&e.ID, &e.Code, &e.Title, &e.ClassName, &e.SecurityCode, &e.Duration, &e.MaxAttempts,
		&grading, &e.AllowHints, &e.AllowReview, &questions, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if grading.Valid && grading.String != "" {
		var cfg model.GradingConfig
		if err := json.Unmarshal([]byte(grading.String), &cfg); err != nil {
			return e, fmt.Errorf("decode grading of exam %s: %w", e.ID, err)
		}
		e.GradingConfig = &cfg
	}
	if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
		return e, fmt.Errorf("decode questions of exam %s: %w", e.ID, err)
	}
	return e, nil
}

// ListExams returns every exam with its results, newest exam first.
func (s *Store) ListExams(ctx context.Context) ([]model.ExamConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	var exams []model.ExamConfig
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		exams = append(exams, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byExam, err := s.resultsByExam(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range exams {
		exams[i].Results = byExam[exams[i].ID]
	}
	return exams, nil
}

// GetExam returns one exam with its results.
func (s *Store) GetExam(ctx context.Context, id string) (model.ExamConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("exam %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return e, err
	}
	e.Results, err = s.ListResults(ctx, id)
	return e, err
}

// PutExam inserts or replaces an exam together with its result history.
func (s *Store) PutExam(ctx context.Context, e model.ExamConfig) error {
	if e.ID == "" {
		return errors.New("put exam: empty id")
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	if e.Questions == nil {
		questions = []byte("[]")
	}
	var grading sql.NullString
	if e.GradingConfig != nil {
		b, err := json.Marshal(e.GradingConfig)
		if err != nil {
			return fmt.Errorf("encode grading: %w", err)
		}
		grading = sql.NullString{String: string(b), Valid: true}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exams (`+examColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			code = excluded.code, title = excluded.title, class_name = excluded.class_name,
			security_code = excluded.security_code, duration = excluded.duration,
			max_attempts = excluded.max_attempts, grading = excluded.grading,
			allow_hints = excluded.allow_hints, allow_review = excluded.allow_review,
			questions = excluded.questions`,
		e.ID, e.Code, e.Title, e.ClassName, e.SecurityCode, e.Duration, e.MaxAttempts,
		grading, e.AllowHints, e.AllowReview, string(questions), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert exam %s: %w", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE exam_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear results of exam %s: %w", e.ID, err)
	}
	// Oldest first, so that seq order matches the history order.
	for i := len(e.Results) - 1; i >= 0; i-- {
		if err := insertResult(ctx, tx, e.ID, e.Results[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("saved exam", "exam_id", e.ID, "questions", len(e.Questions), "results", len(e.Results))
	return nil
}

// DeleteExam removes an exam and its results.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE exam_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("exam %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// AppendResult records one result at the front of an exam's history.
func (s *Store) AppendResult(ctx context.Context, examID string, r model.StudentResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE id = ?`, examID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	if err := insertResult(ctx, tx, examID, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("recorded result", "exam_id", examID, "result_id", r.ID, "score", r.Score)
	return nil
}

func insertResult(ctx context.Context, tx *sql.Tx, examID string, r model.StudentResult) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if r.Answers == nil {
		answers = []byte("{}")
	}
	breakdown, err := json.Marshal(r.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	if r.Breakdown == nil {
		breakdown = []byte("[]")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (id, exam_id, name, class_name, student_id, score, total, date,
			time_spent, violations, correct, wrong, empty, answers, breakdown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, examID, r.Name, r.ClassName, r.StudentID, r.Score, r.Total, r.Date,
		r.TimeSpent, r.Violations, r.Counts.Correct, r.Counts.Wrong, r.Counts.Empty,
		string(answers), string(breakdown),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ID, err)
	}
	return nil
}

// ListResults returns the results of one exam, newest first.
func (s *Store) ListResults(ctx context.Context, examID string) ([]model.StudentResult, error) {
	byExam, err := s.resultsByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return byExam[examID], nil
}

// resultsByExam loads results grouped by exam, newest first. An empty
// examID loads all exams.
func (s *Store) resultsByExam(ctx context.Context, examID string) (map[string][]model.StudentResult, error) {
	query := `SELECT exam_id, id, name, class_name, student_id, score, total, date,
		time_spent, violations, correct, wrong, empty, answers, breakdown
		FROM results`
	var args []any
	if examID != "" {
		query += ` WHERE exam_id = ?`
		args = append(args, examID)
	}
	query += ` ORDER BY seq DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.StudentResult)
	for rows.Next() {
		var (
			exam               string
			r                  model.StudentResult
			answers, breakdown string
		)
		if err := rows.Scan(&exam, &r.ID, &r.Name, &r.ClassName, &r.StudentID, &r.Score, &r.Total, &r.Date,
			&r.TimeSpent, &r.Violations, &r.Counts.Correct, &r.Counts.Wrong, &r.Counts.Empty,
			&answers, &breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of result %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(breakdown), &r.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown of result %s: %w", r.ID, err)
		}
		out[exam] = append(out[exam], r)
	}
	return out, rows.Err()
}
