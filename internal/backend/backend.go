// Package backend opens the exam bank named by a store URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/quizmaster/internal/kvstore"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/store"
)

// DefaultURL is used when no store is configured.
const DefaultURL = "sqlite://quizmaster.db"

// Backend is an exam bank. All implementations return errors wrapping
// store.ErrNotFound for missing exams.
type Backend interface {
	ListExams(ctx context.Context) ([]model.ExamConfig, error)
	GetExam(ctx context.Context, id string) (model.ExamConfig, error)
	PutExam(ctx context.Context, e model.ExamConfig) error
	DeleteExam(ctx context.Context, id string) error
	AppendResult(ctx context.Context, examID string, r model.StudentResult) error
	Close() error
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = (*kvstore.RedisStore)(nil)
	_ Backend = (*kvstore.MongoStore)(nil)
)

// Open connects to the backend named by url: sqlite://path, redis://...
// or mongodb://... A bare path is treated as a SQLite file.
func Open(ctx context.Context, url string) (Backend, error) {
	if url == "" {
		url = DefaultURL
	}
	switch {
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return kvstore.OpenRedis(ctx, url)
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return kvstore.OpenMongo(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return openSQLite(strings.TrimPrefix(url, "sqlite://"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("unsupported store url %q", url)
	default:
		return openSQLite(url)
	}
}

func openSQLite(path string) (*store.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store url has no path")
	}
	return store.New(path)
}

// SQL returns the SQLite store behind b, if any. The roster and import
// bookkeeping are only kept in SQLite.
func SQL(b Backend) (*store.Store, bool) {
	s, ok := b.(*store.Store)
	return s, ok
}
