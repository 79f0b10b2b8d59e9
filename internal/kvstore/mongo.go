package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/store"
)

const (
	defaultMongoDB  = "quizmaster"
	examsCollection = "exams"
)

// examDoc is the stored shape: the exam's JSON document as a nested BSON
// document, with the id and creation time lifted out for lookup and
// sorting.
type examDoc struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
	Exam      bson.M    `bson:"exam"`
}

// MongoStore keeps one document per exam.
type MongoStore struct {
	client *mongo.Client
	exams  *mongo.Collection
}

// NewMongo uses the exams collection of db.
func NewMongo(client *mongo.Client, db string) *MongoStore {
	return &MongoStore{client: client, exams: client.Database(db).Collection(examsCollection)}
}

// OpenMongo connects to the server named by a mongodb:// URL. The
// database is taken from the URL path, defaulting to "quizmaster".
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb url: %w", err)
	}
	db := cs.Database
	if db == "" {
		db = defaultMongoDB
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	slog.Info("connected to mongodb", "database", db)
	return NewMongo(client, db), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ListExams returns every exam, newest first.
func (s *MongoStore) ListExams(ctx context.Context) ([]model.ExamConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.exams.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find exams: %w", err)
	}
	defer cur.Close(ctx)

	var exams []model.ExamConfig
	for cur.Next(ctx) {
		var doc examDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode exam document: %w", err)
		}
		e, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, cur.Err()
}

// GetExam returns one exam.
func (s *MongoStore) GetExam(ctx context.Context, id string) (model.ExamConfig, error) {
	var doc examDoc
	err := s.exams.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ExamConfig{}, fmt.Errorf("exam %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.ExamConfig{}, err
	}
	return fromDoc(doc)
}

// PutExam inserts or replaces an exam document.
func (s *MongoStore) PutExam(ctx context.Context, e model.ExamConfig) error {
	if e.ID == "" {
		return errors.New("put exam: empty id")
	}
	doc, err := toDoc(e)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.exams.ReplaceOne(ctx, bson.M{"_id": e.ID}, doc, opts); err != nil {
		return fmt.Errorf("save exam %s: %w", e.ID, err)
	}
	return nil
}

// DeleteExam removes an exam document.
func (s *MongoStore) DeleteExam(ctx context.Context, id string) error {
	res, err := s.exams.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete exam %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("exam %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// AppendResult pushes a result to the front of the exam's history in a
// single update.
func (s *MongoStore) AppendResult(ctx context.Context, examID string, r model.StudentResult) error {
	result, err := toBSON(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.ID, err)
	}
	update := bson.M{"$push": bson.M{"exam.results": bson.M{
		"$each":     bson.A{result},
		"$position": 0,
	}}}
	res, err := s.exams.UpdateOne(ctx, bson.M{"_id": examID}, update)
	if err != nil {
		return fmt.Errorf("append result to exam %s: %w", examID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("exam %s: %w", examID, store.ErrNotFound)
	}
	return nil
}

func toDoc(e model.ExamConfig) (examDoc, error) {
	data, err := encodeExam(e)
	if err != nil {
		return examDoc{}, err
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(data, false, &m); err != nil {
		return examDoc{}, fmt.Errorf("convert exam %s: %w", e.ID, err)
	}
	return examDoc{ID: e.ID, CreatedAt: e.CreatedAt, Exam: m}, nil
}

func fromDoc(doc examDoc) (model.ExamConfig, error) {
	var e model.ExamConfig
	data, err := bson.MarshalExtJSON(doc.Exam, false, false)
	if err != nil {
		return e, fmt.Errorf("convert exam %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode exam %s: %w", doc.ID, err)
	}
	return e, nil
}

// toBSON converts a value to a BSON document through its JSON form, so
// the stored shape matches the JSON document format.
func toBSON(v any) (bson.M, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(data, false, &m); err != nil {
		return nil, err
	}
	return m, nil
}
