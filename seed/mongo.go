package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultCollectionName = "_seeds"

// mongoRecord is the stored form of a Record. The _id joins application and
// seed id so replicas starting together converge on one document.
type mongoRecord struct {
	Key         string    `bson:"_id"`
	Application string    `bson:"application"`
	Seed        string    `bson:"seed"`
	Description string    `bson:"description"`
	Digest      string    `bson:"digest"`
	AppliedAt   time.Time `bson:"applied_at"`
}

// MongoTracker stores seed records inside a MongoDB collection.
type MongoTracker struct {
	collection *mongo.Collection
}

// MongoTrackerOption configures a MongoTracker.
type MongoTrackerOption func(*mongoTrackerConfig)

type mongoTrackerConfig struct {
	collectionName string
}

// WithCollectionName overrides the seed record collection.
func WithCollectionName(name string) MongoTrackerOption {
	return func(cfg *mongoTrackerConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.collectionName = trimmed
		}
	}
}

func NewMongoTracker(db *mongo.Database, opts ...MongoTrackerOption) *MongoTracker {
	cfg := mongoTrackerConfig{collectionName: defaultCollectionName}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MongoTracker{collection: db.Collection(cfg.collectionName)}
}

func (t *MongoTracker) Lookup(ctx context.Context, application, id string) (Record, bool, error) {
	if t == nil || t.collection == nil {
		return Record{}, false, errors.New("mongo tracker is not initialized")
	}

	key := recordKey(application, id)
	var doc mongoRecord
	err := t.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query seed %s: %w", key, err)
	}
	return Record{
		Application: doc.Application,
		ID:          doc.Seed,
		Description: doc.Description,
		Digest:      doc.Digest,
		AppliedAt:   doc.AppliedAt,
	}, true, nil
}

// MarkRun upserts the record, so a concurrent or repeated run of the same
// seed never fails on a duplicate key.
func (t *MongoTracker) MarkRun(ctx context.Context, record Record) error {
	if t == nil || t.collection == nil {
		return errors.New("mongo tracker is not initialized")
	}
	if err := record.validate(); err != nil {
		return err
	}

	doc := mongoRecord{
		Key:         record.Key(),
		Application: record.Application,
		Seed:        record.ID,
		Description: record.Description,
		Digest:      record.Digest,
		AppliedAt:   record.AppliedAt.UTC(),
	}
	_, err := t.collection.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store seed record %s: %w", doc.Key, err)
	}
	return nil
}
