// Package resolver fulfills CRUD, relation, computed-field, and view
// resolution against the storage-driver contract. The request pipeline's
// terminal operation lives here.
package resolver

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/pipeline"
	"dataplane-backend/internal/store"
)

const (
	stateVisiting = 1
	stateDone     = 2
)

// Computed evaluates derived fields in dependency order. A fresh evaluation
// pass starts at every resolver entry point, so a field referenced by
// several dependents is computed once per pass and a stale value never
// leaks across records.
type Computed struct {
	source metadata.RecordSource
}

func NewComputed(d store.Driver) *Computed {
	return &Computed{source: driverSource{d}}
}

// ResolveRecord computes every descriptor on the entity, dependencies
// first, attaching values to the record under the field names.
func (c *Computed) ResolveRecord(ctx context.Context, e *metadata.Entity, record map[string]any, rctx *metadata.ResolutionContext) error {
	if len(e.Computed) == 0 || record == nil {
		return nil
	}
	states := make(map[string]int, len(e.Computed))
	for i := range e.Computed {
		if err := c.eval(ctx, e, &e.Computed[i], record, rctx, states); err != nil {
			return err
		}
	}
	return nil
}

// eval is a depth-first walk with a visiting marker: re-entering a field
// that is still being visited means the dependency graph loops.
func (c *Computed) eval(ctx context.Context, e *metadata.Entity, cf *metadata.ComputedField, record map[string]any, rctx *metadata.ResolutionContext, states map[string]int) error {
	switch states[cf.Name] {
	case stateDone:
		return nil
	case stateVisiting:
		return pipeline.DependencyCycle(cf.Name)
	}
	states[cf.Name] = stateVisiting

	for _, dep := range cf.DependsOn {
		depField := e.GetComputed(dep)
		if depField == nil {
			return pipeline.UnknownComputedField(cf.Name, dep)
		}
		if err := c.eval(ctx, e, depField, record, rctx, states); err != nil {
			return err
		}
	}

	value, err := c.value(ctx, cf, record, rctx)
	if err != nil {
		return err
	}
	record[cf.Name] = value
	states[cf.Name] = stateDone
	return nil
}

// value computes one field. Seed mode prefers the mock generator so bulk
// data generation skips expensive resolvers.
func (c *Computed) value(ctx context.Context, cf *metadata.ComputedField, record map[string]any, rctx *metadata.ResolutionContext) (any, error) {
	if rctx != nil && rctx.Mode == metadata.ModeSeed && cf.Mock != nil {
		return cf.Mock(), nil
	}
	if cf.Resolve != nil {
		return cf.Resolve(ctx, record, c.source, rctx)
	}
	if cf.Expr != "" {
		return c.evalExpr(cf, record, rctx)
	}
	return nil, pipeline.NewError("INVALID_COMPUTED_FIELD", 500,
		fmt.Sprintf("computed field %s has neither resolver nor expression", cf.Name))
}

func (c *Computed) evalExpr(cf *metadata.ComputedField, record map[string]any, rctx *metadata.ResolutionContext) (any, error) {
	prog, _ := cf.Compiled().(*vm.Program)
	if prog == nil {
		compiled, err := expr.Compile(cf.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile computed field %s: %w", cf.Name, err)
		}
		cf.SetCompiled(compiled)
		prog = compiled
	}

	env := map[string]any{"record": record}
	if rctx != nil {
		env["params"] = rctx.Params
		env["ctx"] = rctx.Exec
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate computed field %s: %w", cf.Name, err)
	}
	return result, nil
}

// driverSource narrows the full driver contract for computed-field
// resolvers: absent rows come back as nil, not as an error.
type driverSource struct {
	d store.Driver
}

func (s driverSource) FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error) {
	rec, err := s.d.FindOne(ctx, entity, where)
	if err == store.ErrNotFound {
		return nil, nil
	}
	return rec, err
}

func (s driverSource) FindAll(ctx context.Context, entity string, where map[string]any) ([]map[string]any, error) {
	res, err := s.d.FindMany(ctx, entity, store.Query{Where: where})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s driverSource) Count(ctx context.Context, entity string, where map[string]any) (int64, error) {
	return s.d.Count(ctx, entity, where)
}
