package warden

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpdatedAtField is the document field MongoRepo stamps with the server time
// on every upsert.
const UpdatedAtField = "updated_at"

// MongoRepo is a generic aggregate repository backed by a Mongo collection.
// Aggregates must tag their key field with `bson:"_id"`.
type MongoRepo[T Identifiable] struct {
	collection *mongo.Collection
	factory    func() T
}

func NewMongoRepo[T Identifiable](collection *mongo.Collection, factory func() T) (*MongoRepo[T], error) {
	if collection == nil {
		return nil, errors.New("mongo collection is required")
	}
	if factory == nil {
		return nil, errors.New("mongo repository factory is required")
	}
	return &MongoRepo[T]{collection: collection, factory: factory}, nil
}

// Upsert writes aggregate under its ID and returns the stored document. The
// server sets UpdatedAtField, so writers with skewed clocks still order
// correctly.
func (r *MongoRepo[T]) Upsert(ctx context.Context, aggregate T) (T, error) {
	var zero T
	if isNil(aggregate) {
		return zero, errors.New("aggregate cannot be nil")
	}
	id := aggregate.ID()
	if id == "" {
		return zero, errors.New("aggregate id is required")
	}
	update, err := upsertUpdate(aggregate)
	if err != nil {
		return zero, err
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	res := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts)
	if err := res.Err(); err != nil {
		return zero, fmt.Errorf("mongo upsert aggregate %s: %w", id, err)
	}
	stored := r.factory()
	if err := res.Decode(stored); err != nil {
		return zero, fmt.Errorf("mongo decode aggregate: %w", err)
	}
	return stored, nil
}

// upsertUpdate sets every field of aggregate except _id and UpdatedAtField,
// which the server fills in.
func upsertUpdate(aggregate any) (bson.D, error) {
	raw, err := bson.Marshal(aggregate)
	if err != nil {
		return nil, fmt.Errorf("mongo encode aggregate: %w", err)
	}
	var fields bson.D
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("mongo encode aggregate: %w", err)
	}
	set := make(bson.D, 0, len(fields))
	for _, f := range fields {
		if f.Key == "_id" || f.Key == UpdatedAtField {
			continue
		}
		set = append(set, f)
	}
	update := bson.D{{Key: "$currentDate", Value: bson.D{{Key: UpdatedAtField, Value: true}}}}
	if len(set) > 0 {
		update = append(bson.D{{Key: "$set", Value: set}}, update...)
	}
	return update, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (r *MongoRepo[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	res := r.collection.FindOne(ctx, bson.M{"_id": id})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, ErrRepoNotFound
		}
		return zero, fmt.Errorf("mongo find aggregate: %w", err)
	}
	aggregate := r.factory()
	if err := res.Decode(aggregate); err != nil {
		return zero, fmt.Errorf("mongo decode aggregate: %w", err)
	}
	return aggregate, nil
}

func (r *MongoRepo[T]) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete aggregate: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrRepoNotFound
	}
	return nil
}

func (r *MongoRepo[T]) List(ctx context.Context, filter any) ([]T, error) {
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo list aggregates: %w", err)
	}
	defer cursor.Close(ctx)

	var aggregates []T
	for cursor.Next(ctx) {
		aggregate := r.factory()
		if err := cursor.Decode(aggregate); err != nil {
			return nil, fmt.Errorf("mongo decode aggregate: %w", err)
		}
		aggregates = append(aggregates, aggregate)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return aggregates, nil
}
