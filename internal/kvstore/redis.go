// Package kvstore keeps the exam bank as JSON documents in Redis or
// MongoDB.
package kvstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/store"
)

const (
	redisPrefix  = "quizmaster:"
	redisExamSet = redisPrefix + "exams"

	appendRetries = 5
)

// RedisStore keeps each exam under its own key and their ids in a set.
type RedisStore struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis connects to the server named by a redis:// URL.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return NewRedis(client), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func examKey(id string) string {
	return redisPrefix + "exam:" + id
}

// ListExams returns every exam, newest first.
func (s *RedisStore) ListExams(ctx context.Context) ([]model.ExamConfig, error) {
	ids, err := s.client.SMembers(ctx, redisExamSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list exam ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = examKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load exams: %w", err)
	}

	exams := make([]model.ExamConfig, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Listed in the set but the document is gone.
			slog.Warn("exam id without document", "exam_id", ids[i])
			continue
		}
		var e model.ExamConfig
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode exam %s: %w", ids[i], err)
		}
		exams = append(exams, e)
	}
	sortExams(exams)
	return exams, nil
}

func sortExams(exams []model.ExamConfig) {
	slices.SortFunc(exams, func(a, b model.ExamConfig) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// GetExam returns one exam.
func (s *RedisStore) GetExam(ctx context.Context, id string) (model.ExamConfig, error) {
	var e model.ExamConfig
	raw, err := s.client.Get(ctx, examKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, fmt.Errorf("exam %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, fmt.Errorf("decode exam %s: %w", id, err)
	}
	return e, nil
}

// PutExam writes an exam document and registers its id.
func (s *RedisStore) PutExam(ctx context.Context, e model.ExamConfig) error {
	if e.ID == "" {
		return errors.New("put exam: empty id")
	}
	data, err := encodeExam(e)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, examKey(e.ID), data, 0)
		p.SAdd(ctx, redisExamSet, e.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save exam %s: %w", e.ID, err)
	}
	return nil
}

// DeleteExam removes an exam document.
func (s *RedisStore) DeleteExam(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, examKey(id))
		p.SRem(ctx, redisExamSet, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete exam %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("exam %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// AppendResult prepends a result to an exam's history. The exam key is
// watched so concurrent submissions do not overwrite each other.
func (s *RedisStore) AppendResult(ctx context.Context, examID string, r model.StudentResult) error {
	key := examKey(examID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("exam %s: %w", examID, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		var e model.ExamConfig
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode exam %s: %w", examID, err)
		}
		data, err := encodeExam(e.WithResult(r))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for range appendRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("append result to exam %s: too much contention", examID)
}

func encodeExam(e model.ExamConfig) ([]byte, error) {
	if e.Questions == nil {
		e.Questions = []model.Question{}
	}
	if e.Results == nil {
		e.Results = []model.StudentResult{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode exam %s: %w", e.ID, err)
	}
	return data, nil
}
