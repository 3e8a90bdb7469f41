package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-customer-layer/internal/infrastructure/repository/entity"
	"storefront-customer-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultSlotCollection holds persisted token slots
const DefaultSlotCollection = "customer_token_slots"

// MongoStore keeps slots as documents keyed by slot name
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ ports.KeyValueStore = (*MongoStore)(nil)

// NewMongoStore creates a store on the given collection
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultSlotCollection
	}
	return &MongoStore{
		collection: db.Collection(collection),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique index on key
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create slot index: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (string, bool, error) {
	var doc entity.MongoSlotDoc
	err := s.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get slot: %w", err)
	}
	return doc.Value, true, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, value string) error {
	doc := entity.NewMongoSlotDoc(key, value, s.now())

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"key": key}
	update := bson.M{"$set": doc}

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

func (s *MongoStore) Take(ctx context.Context, key string) (string, bool, error) {
	var doc entity.MongoSlotDoc
	err := s.collection.FindOneAndDelete(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take slot: %w", err)
	}
	return doc.Value, true, nil
}

func (s *MongoStore) Remove(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"key": key}); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return nil
}
