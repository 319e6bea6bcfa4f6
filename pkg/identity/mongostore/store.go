// Package mongostore implements identity.Store over a MongoDB collection.
// Unique constraints on username, email and npk are enforced by indexes
// created at startup; duplicate-key failures are translated into the shared
// error taxonomy so the service's retry loop can react to npk collisions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/policy"
)

const usersCollection = "users"

// Store is the MongoDB-backed identity store.
type Store struct {
	users *mongo.Collection
}

// New creates a Store over the given database and ensures its indexes.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{users: db.Collection(usersCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure user indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_username"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			// Sparse so records without an npk do not collide on the
			// missing value.
			Keys:    bson.D{{Key: "npk", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_npk"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "unit", Value: 1}},
			Options: options.Index().SetName("role_unit"),
		},
	})
	return err
}

func (s *Store) Insert(ctx context.Context, u *identity.User) error {
	_, err := s.users.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &errs.DuplicateError{Field: duplicateField(err)}
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string, opts identity.LookupOptions) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"_id": id}, opts)
}

func (s *Store) FindByUsername(ctx context.Context, username string, opts identity.LookupOptions) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"username": username}, opts)
}

func (s *Store) FindByEmail(ctx context.Context, email string, opts identity.LookupOptions) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)}, opts)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts identity.LookupOptions) (*identity.User, error) {
	if !opts.IncludeInactive {
		filter["is_active"] = true
	}

	var u identity.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &errs.NotFoundError{Resource: "user"}
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) Update(ctx context.Context, id string, fields map[string]interface{}) (*identity.User, error) {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}

	after := options.After
	var u identity.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &errs.NotFoundError{Resource: "user"}
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, &errs.DuplicateError{Field: duplicateField(err)}
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}

func (s *Store) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return fmt.Errorf("stamp last login: %w", err)
	}
	if res.MatchedCount == 0 {
		return &errs.NotFoundError{Resource: "user"}
	}
	return nil
}

func (s *Store) SetNPK(ctx context.Context, id, npk string) error {
	res, err := s.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"npk":        npk,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &errs.DuplicateError{Field: "npk"}
		}
		return fmt.Errorf("assign npk: %w", err)
	}
	if res.MatchedCount == 0 {
		return &errs.NotFoundError{Resource: "user"}
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter identity.ListFilter) ([]*identity.User, int, error) {
	query := bson.M{"is_active": true}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if filter.Unit != "" {
		query["unit"] = filter.Unit
	}
	if filter.Search != "" {
		pattern := regexQuoteMeta(filter.Search)
		or := make([]bson.M, 0, 4)
		for _, field := range []string{"username", "full_name", "email", "npk"} {
			or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
		}
		query["$or"] = or
	}

	total, err := s.users.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))

	cursor, err := s.users.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*identity.User
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	if records == nil {
		records = []*identity.User{}
	}
	return records, int(total), nil
}

func (s *Store) MaxNPKSuffix(ctx context.Context) (int, error) {
	// A descending sort on the npk string compares bytes, which puts
	// NPK9999 ahead of NPK10000 once suffixes widen past four digits.
	// Convert the suffix to a number and take the max server-side.
	suffixLen := bson.M{"$subtract": bson.A{bson.M{"$strLenCP": "$npk"}, 3}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"npk": bson.M{"$regex": `^NPK\d{4,}$`}}}},
		{{Key: "$project", Value: bson.M{
			"suffix": bson.M{"$toInt": bson.M{"$substrCP": bson.A{"$npk", 3, suffixLen}}},
		}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "max": bson.M{"$max": "$suffix"}}}},
	}

	cursor, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("max npk suffix: %w", err)
	}
	defer cursor.Close(ctx)

	var out []struct {
		Max int `bson:"max"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("decode max npk suffix: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Max, nil
}

func (s *Store) PerawatMissingNPK(ctx context.Context) ([]*identity.User, error) {
	query := bson.M{
		"is_active": true,
		"role":      policy.RolePerawat,
		"$or": []bson.M{
			{"npk": bson.M{"$exists": false}},
			{"npk": ""},
			{"npk": bson.M{"$not": bson.M{"$regex": `^NPK\d{4,}$`}}},
		},
	}

	cursor, err := s.users.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find perawat without npk: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*identity.User
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return records, nil
}

func (s *Store) Purge(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("purge user: %w", err)
	}
	if res.DeletedCount == 0 {
		return &errs.NotFoundError{Resource: "user"}
	}
	return nil
}

// duplicateField maps a duplicate-key error back to the colliding field by
// looking for the index name in the server message.
func duplicateField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "uniq_username"):
		return "username"
	case strings.Contains(msg, "uniq_email"):
		return "email"
	case strings.Contains(msg, "uniq_npk"):
		return "npk"
	}
	return "unknown"
}

// regexQuoteMeta escapes regex metacharacters in a search term.
func regexQuoteMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
