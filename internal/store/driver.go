// Package store defines the storage-driver contract consumed by the
// resolution engine, plus the two bundled drivers: an in-memory driver for
// mock mode and tests, and a database/sql driver for production use.
package store

import (
	"context"
	"errors"

	"dataplane-backend/internal/metadata"
)

var ErrNotFound = errors.New("not found")

// Sort orders a result set by one field.
type Sort struct {
	Field string
	Desc  bool
}

// Query shapes a FindMany call. Where keys are a field name ("status") or a
// field.operator pair ("total.gte"); operators are eq, neq, gt, gte, lt,
// lte, in, not_in, like.
type Query struct {
	Where  map[string]any
	Sort   []Sort
	Limit  int
	Offset int
}

// Result is a FindMany page.
type Result struct {
	Records []map[string]any
	Total   int
	HasMore bool
}

// Driver is the storage capability the engine calls. All calls may block;
// implementations honor ctx cancellation where their backend allows.
//
// FindOne and Update return ErrNotFound for an absent row; the CRUD
// resolver translates that into an empty envelope for reads. Relation
// inclusion is not a driver concern: the engine's relation resolver batches
// FindMany calls itself so every driver gets N+1-free includes for free.
type Driver interface {
	FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error)
	FindMany(ctx context.Context, entity string, q Query) (*Result, error)
	Create(ctx context.Context, entity string, data map[string]any) (map[string]any, error)
	Update(ctx context.Context, entity string, where map[string]any, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, entity string, where map[string]any) error
	Count(ctx context.Context, entity string, where map[string]any) (int64, error)
	Seed(ctx context.Context, counts map[string]int, reg *metadata.Registry) error
	Reset(ctx context.Context) error
}
