package questions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kredensia/kredensia/pkg/errs"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Question
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Question)}
}

func (m *MemoryStore) Insert(ctx context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *q
	m.records[q.ID] = &clone
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.records[id]
	if !ok {
		return nil, &errs.NotFoundError{Resource: "question"}
	}
	clone := *q
	return &clone, nil
}

func (m *MemoryStore) Replace(ctx context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[q.ID]; !ok {
		return &errs.NotFoundError{Resource: "question"}
	}
	clone := *q
	m.records[q.ID] = &clone
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return &errs.NotFoundError{Resource: "question"}
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Question, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*Question, 0)
	for _, q := range m.records {
		if filter.Category != "" && q.Category != filter.Category {
			continue
		}
		clone := *q
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []*Question{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

const questionsCollection = "questions"

// MongoStore is the MongoDB-backed question store.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a MongoStore and ensures its category index.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{coll: db.Collection(questionsCollection)}
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "category", Value: 1}},
		Options: options.Index().SetName("category"),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure question indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Insert(ctx context.Context, q *Question) error {
	if _, err := s.coll.InsertOne(ctx, q); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*Question, error) {
	var q Question
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &errs.NotFoundError{Resource: "question"}
		}
		return nil, fmt.Errorf("find question: %w", err)
	}
	return &q, nil
}

func (s *MongoStore) Replace(ctx context.Context, q *Question) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": q.ID}, q)
	if err != nil {
		return fmt.Errorf("replace question: %w", err)
	}
	if res.MatchedCount == 0 {
		return &errs.NotFoundError{Resource: "question"}
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if res.DeletedCount == 0 {
		return &errs.NotFoundError{Resource: "question"}
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]*Question, int, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))

	cursor, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*Question
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("decode questions: %w", err)
	}
	if records == nil {
		records = []*Question{}
	}
	return records, int(total), nil
}
