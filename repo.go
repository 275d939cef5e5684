package warden

import (
	"context"
	"errors"
)

var ErrRepoNotFound = errors.New("repository: aggregate not found")

// Identifiable aggregates expose a stable string key used as storage _id.
type Identifiable interface {
	ID() string
}

// Repo is the minimum contract stores depend on for aggregate persistence.
type Repo[T Identifiable] interface {
	Upsert(ctx context.Context, aggregate T) (T, error)
	FindByID(ctx context.Context, id string) (T, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter any) ([]T, error)
}
