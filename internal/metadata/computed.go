package metadata

import (
	"context"
)

// Mode selects the resolution policy for relation and computed-field hydration.
type Mode string

const (
	// ModeResolve runs the real resolver functions.
	ModeResolve Mode = "resolve"
	// ModeSeed prefers mock generators over real resolvers during bulk
	// data generation.
	ModeSeed Mode = "seed"
)

// ResolutionContext carries ambient state through relation and computed
// resolution so policy can vary by caller.
type ResolutionContext struct {
	Mode   Mode
	Params map[string]string
	Exec   map[string]any
}

// RecordSource is the narrow slice of the storage-driver contract handed to
// computed-field resolvers. Lookups use a where map whose keys are either a
// field name ("status") or a field.operator pair ("total.gte").
type RecordSource interface {
	FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error)
	FindAll(ctx context.Context, entity string, where map[string]any) ([]map[string]any, error)
	Count(ctx context.Context, entity string, where map[string]any) (int64, error)
}

// ResolveFunc computes a derived value from a record. Previously computed
// dependencies are visible on the record under their field names.
type ResolveFunc func(ctx context.Context, record map[string]any, src RecordSource, rctx *ResolutionContext) (any, error)

// MockFunc produces a stand-in value when resolving in seed mode.
type MockFunc func() any

// ComputedField describes a derived field. Exactly one of Resolve or Expr
// should be set; Expr is an expr-lang expression evaluated against
// {record, params, ctx}.
type ComputedField struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	Expr      string   `json:"expr,omitempty"`

	Resolve ResolveFunc `json:"-"`
	Mock    MockFunc    `json:"-"`

	compiled any // lazily compiled *vm.Program for Expr
}

// Compiled returns the cached compiled program, if any.
func (c *ComputedField) Compiled() any { return c.compiled }

// SetCompiled caches a compiled program for Expr.
func (c *ComputedField) SetCompiled(p any) { c.compiled = p }
