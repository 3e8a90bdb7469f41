package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoSlotDoc is one persisted key-value slot
type MongoSlotDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Key       string             `bson:"key"`
	Value     string             `bson:"value"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// NewMongoSlotDoc builds the document written on every save
func NewMongoSlotDoc(key, value string, now time.Time) *MongoSlotDoc {
	return &MongoSlotDoc{
		Key:       key,
		Value:     value,
		UpdatedAt: now.UTC(),
	}
}
