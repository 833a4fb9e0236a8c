package resolver

import (
	"context"
	"sync"
	"testing"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/store"
)

// blogRegistry covers every relation kind: posts belong to users, users
// have many posts, and posts link to tags through a junction entity.
func blogRegistry() *metadata.Registry {
	reg := metadata.NewRegistry()
	reg.Register(&metadata.Entity{
		Name:       "users",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "string"},
		Fields: []metadata.Field{
			{Name: "id", Type: "string"},
			{Name: "name", Type: "string"},
		},
		Relations: []metadata.Relation{
			{Name: "posts", Kind: metadata.HasMany, Target: "posts", LocalKey: "id", ForeignKey: "author_id"},
		},
	})
	reg.Register(&metadata.Entity{
		Name:       "posts",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "string"},
		Fields: []metadata.Field{
			{Name: "id", Type: "string"},
			{Name: "title", Type: "string"},
			{Name: "status", Type: "string"},
			{Name: "author_id", Type: "string"},
			{Name: "likes", Type: "int"},
		},
		Relations: []metadata.Relation{
			{Name: "author", Kind: metadata.BelongsTo, Target: "users", LocalKey: "author_id", ForeignKey: "id"},
			{Name: "tags", Kind: metadata.ManyToMany, Target: "tags", LocalKey: "id",
				Through: "post_tags", ThroughLocalKey: "post_id", ThroughForeignKey: "tag_id"},
		},
	})
	reg.Register(&metadata.Entity{
		Name:       "tags",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "string"},
		Fields: []metadata.Field{
			{Name: "id", Type: "string"},
			{Name: "label", Type: "string"},
		},
	})
	reg.Register(&metadata.Entity{
		Name:       "post_tags",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "post_id", Type: "string"},
			{Name: "tag_id", Type: "string"},
		},
	})
	return reg
}

func seedBlog(t *testing.T, d store.Driver) {
	t.Helper()
	ctx := context.Background()
	rows := []struct {
		entity string
		rec    map[string]any
	}{
		{"users", map[string]any{"id": "u1", "name": "Ada"}},
		{"users", map[string]any{"id": "u2", "name": "Brin"}},
		{"posts", map[string]any{"id": "p1", "title": "First", "status": "published", "author_id": "u1", "likes": 3}},
		{"posts", map[string]any{"id": "p2", "title": "Second", "status": "draft", "author_id": "u1", "likes": 1}},
		{"posts", map[string]any{"id": "p3", "title": "Third", "status": "published", "author_id": "u2", "likes": 7}},
		{"tags", map[string]any{"id": "t1", "label": "go"}},
		{"tags", map[string]any{"id": "t2", "label": "sql"}},
		{"post_tags", map[string]any{"post_id": "p1", "tag_id": "t1"}},
		{"post_tags", map[string]any{"post_id": "p1", "tag_id": "t2"}},
		{"post_tags", map[string]any{"post_id": "p3", "tag_id": "t1"}},
	}
	for _, row := range rows {
		if _, err := d.Create(ctx, row.entity, row.rec); err != nil {
			t.Fatalf("seed %s: %v", row.entity, err)
		}
	}
}

func newLikesDoubledField() metadata.ComputedField {
	return metadata.ComputedField{Name: "likes_doubled", Expr: `record.likes * 2`}
}

// countingDriver counts calls per method so tests can assert batching.
type countingDriver struct {
	store.Driver
	mu       sync.Mutex
	findOne  int
	findMany int
}

func (c *countingDriver) FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.findOne++
	c.mu.Unlock()
	return c.Driver.FindOne(ctx, entity, where)
}

func (c *countingDriver) FindMany(ctx context.Context, entity string, q store.Query) (*store.Result, error) {
	c.mu.Lock()
	c.findMany++
	c.mu.Unlock()
	return c.Driver.FindMany(ctx, entity, q)
}

func (c *countingDriver) counts() (one, many int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findOne, c.findMany
}
