package resolver

import (
	"context"
	"errors"
	"testing"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/pipeline"
	"dataplane-backend/internal/store"
)

func TestComputedDependenciesEvaluateFirst(t *testing.T) {
	var order []string
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{
				Name:      "summary",
				DependsOn: []string{"word_count"},
				Resolve: func(ctx context.Context, record map[string]any, src metadata.RecordSource, rctx *metadata.ResolutionContext) (any, error) {
					order = append(order, "summary")
					return record["word_count"].(int) * 2, nil
				},
			},
			{
				Name: "word_count",
				Resolve: func(ctx context.Context, record map[string]any, src metadata.RecordSource, rctx *metadata.ResolutionContext) (any, error) {
					order = append(order, "word_count")
					return 21, nil
				},
			},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	rec := map[string]any{"id": "p1"}
	if err := c.ResolveRecord(context.Background(), e, rec, nil); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}

	if len(order) != 2 || order[0] != "word_count" || order[1] != "summary" {
		t.Fatalf("evaluation order = %v", order)
	}
	if rec["summary"] != 42 {
		t.Fatalf("summary = %v", rec["summary"])
	}
}

func TestComputedSharedDependencyEvaluatesOnce(t *testing.T) {
	calls := 0
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{
				Name: "base",
				Resolve: func(ctx context.Context, record map[string]any, src metadata.RecordSource, rctx *metadata.ResolutionContext) (any, error) {
					calls++
					return 1, nil
				},
			},
			{Name: "a", DependsOn: []string{"base"}, Expr: `record.base + 1`},
			{Name: "b", DependsOn: []string{"base"}, Expr: `record.base + 2`},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	rec := map[string]any{}
	if err := c.ResolveRecord(context.Background(), e, rec, nil); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}
	if calls != 1 {
		t.Fatalf("base evaluated %d times, want 1", calls)
	}

	// A second record starts a fresh pass.
	if err := c.ResolveRecord(context.Background(), e, map[string]any{}, nil); err != nil {
		t.Fatalf("second ResolveRecord: %v", err)
	}
	if calls != 2 {
		t.Fatalf("base evaluated %d times across two passes, want 2", calls)
	}
}

func TestComputedCycleIsFatal(t *testing.T) {
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{Name: "a", DependsOn: []string{"b"}, Expr: `1`},
			{Name: "b", DependsOn: []string{"a"}, Expr: `1`},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	err := c.ResolveRecord(context.Background(), e, map[string]any{}, nil)

	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Code != "DEPENDENCY_CYCLE" {
		t.Fatalf("expected DEPENDENCY_CYCLE, got %v", err)
	}
}

func TestComputedUnknownDependencyIsFatal(t *testing.T) {
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{Name: "a", DependsOn: []string{"nope"}, Expr: `1`},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	err := c.ResolveRecord(context.Background(), e, map[string]any{}, nil)

	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Code != "UNKNOWN_COMPUTED_FIELD" {
		t.Fatalf("expected UNKNOWN_COMPUTED_FIELD, got %v", err)
	}
}

func TestComputedSeedModePrefersMock(t *testing.T) {
	resolved := false
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{
				Name: "score",
				Resolve: func(ctx context.Context, record map[string]any, src metadata.RecordSource, rctx *metadata.ResolutionContext) (any, error) {
					resolved = true
					return 99, nil
				},
				Mock: func() any { return 7 },
			},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	rec := map[string]any{}
	rctx := &metadata.ResolutionContext{Mode: metadata.ModeSeed}
	if err := c.ResolveRecord(context.Background(), e, rec, rctx); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}
	if rec["score"] != 7 {
		t.Fatalf("score = %v, want mock value", rec["score"])
	}
	if resolved {
		t.Fatal("real resolver ran in seed mode")
	}

	// Resolve mode runs the real resolver.
	rec = map[string]any{}
	rctx.Mode = metadata.ModeResolve
	if err := c.ResolveRecord(context.Background(), e, rec, rctx); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}
	if rec["score"] != 99 || !resolved {
		t.Fatalf("score = %v in resolve mode", rec["score"])
	}
}

func TestComputedExprSeesParamsAndContext(t *testing.T) {
	e := &metadata.Entity{
		Name: "posts",
		Computed: []metadata.ComputedField{
			{Name: "greeting", Expr: `params.lang + ":" + ctx.userId`},
		},
	}

	c := NewComputed(store.NewMemory(metadata.NewRegistry()))
	rec := map[string]any{}
	rctx := &metadata.ResolutionContext{
		Mode:   metadata.ModeResolve,
		Params: map[string]string{"lang": "en"},
		Exec:   map[string]any{"userId": "u1"},
	}
	if err := c.ResolveRecord(context.Background(), e, rec, rctx); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}
	if rec["greeting"] != "en:u1" {
		t.Fatalf("greeting = %v", rec["greeting"])
	}
}

func TestComputedResolverCanQueryStorage(t *testing.T) {
	reg := blogRegistry()
	mem := store.NewMemory(reg)
	seedBlog(t, mem)

	e := reg.Get("users")
	e.Computed = []metadata.ComputedField{
		{
			Name: "post_count",
			Resolve: func(ctx context.Context, record map[string]any, src metadata.RecordSource, rctx *metadata.ResolutionContext) (any, error) {
				return src.Count(ctx, "posts", map[string]any{"author_id": record["id"]})
			},
		},
	}

	c := NewComputed(mem)
	rec, _ := mem.FindOne(context.Background(), "users", map[string]any{"id": "u1"})
	if err := c.ResolveRecord(context.Background(), e, rec, nil); err != nil {
		t.Fatalf("ResolveRecord: %v", err)
	}
	if rec["post_count"] != int64(2) {
		t.Fatalf("post_count = %v, want 2", rec["post_count"])
	}
}

func TestComputedFieldWithoutResolverIsConfigError(t *testing.T) {
	e := &metadata.Entity{
		Name:     "posts",
		Computed: []metadata.ComputedField{{Name: "empty"}},
	}
	c := NewComputed(store.NewMemory(metadata.NewRegistry()))

	err := c.ResolveRecord(context.Background(), e, map[string]any{}, nil)
	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Code != "INVALID_COMPUTED_FIELD" {
		t.Fatalf("expected INVALID_COMPUTED_FIELD, got %v", err)
	}
}
