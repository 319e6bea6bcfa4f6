package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kredensia/kredensia/pkg/errs"
)

const credentialsCollection = "credentials"

// MongoStore is the MongoDB-backed credential store.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a MongoStore and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{coll: db.Collection(credentialsCollection)}

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// One document number per kind per user.
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user_kind_number"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure credential indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Insert(ctx context.Context, c *Credential) error {
	_, err := s.coll.InsertOne(ctx, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &errs.DuplicateError{Field: "number"}
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*Credential, error) {
	var c Credential
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &errs.NotFoundError{Resource: "credential"}
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, fields map[string]interface{}) (*Credential, error) {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}

	after := options.After
	var c Credential
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &errs.NotFoundError{Resource: "credential"}
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, &errs.DuplicateError{Field: "number"}
		}
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if res.DeletedCount == 0 {
		return &errs.NotFoundError{Resource: "credential"}
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]*Credential, int, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count credentials: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))

	cursor, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*Credential
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("decode credentials: %w", err)
	}
	if records == nil {
		records = []*Credential{}
	}
	return records, int(total), nil
}

func (s *MongoStore) ExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Credential, error) {
	query := bson.M{
		"status":     StatusVerified,
		"expires_at": bson.M{"$lt": cutoff},
	}

	cursor, err := s.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find expiring credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*Credential
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return records, nil
}
