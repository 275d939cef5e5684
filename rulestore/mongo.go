package rulestore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

// MongoCollection is the collection rules are stored in.
const MongoCollection = "notfound_rules"

// Mongo stores one document per subject key, keyed by the key string. The
// updated_at of a saved record is the server time of the write.
type Mongo struct {
	repo *warden.MongoRepo[*Record]
	now  func() time.Time
}

func NewMongo(collection *mongo.Collection) (*Mongo, error) {
	repo, err := warden.NewMongoRepo(collection, func() *Record { return &Record{} })
	if err != nil {
		return nil, err
	}
	return &Mongo{repo: repo, now: time.Now}, nil
}

func (m *Mongo) Get(ctx context.Context, key subject.Key) (Record, error) {
	rec, err := m.repo.FindByID(ctx, key.String())
	if err != nil {
		return Record{}, mapRepoErr(err)
	}
	return *rec, nil
}

func (m *Mongo) Save(ctx context.Context, key subject.Key, rule redirect.Rule) (Record, error) {
	rec, err := newRecord(key, rule, m.now())
	if err != nil {
		return Record{}, err
	}
	stored, err := m.repo.Upsert(ctx, &rec)
	if err != nil {
		return Record{}, err
	}
	return *stored, nil
}

func (m *Mongo) Delete(ctx context.Context, key subject.Key) error {
	return mapRepoErr(m.repo.Delete(ctx, key.String()))
}

func (m *Mongo) List(ctx context.Context) ([]Record, error) {
	recs, err := m.repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, warden.ErrRepoNotFound) {
		return ErrNotFound
	}
	return err
}
