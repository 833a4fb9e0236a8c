package middleware

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"dataplane-backend/internal/pipeline"
)

// Predicate decides whether the execution context may touch a row.
type Predicate func(record map[string]any, exec map[string]any) (bool, error)

// Rule is one RLS predicate, either a Go function or an expr-lang
// expression over {record, ctx}. The expression is compiled lazily and
// cached.
type Rule struct {
	Predicate Predicate
	Expr      string

	compiled *vm.Program
}

// Allow evaluates the rule. A rule with neither form allows everything.
func (r *Rule) Allow(record, exec map[string]any) (bool, error) {
	if r == nil {
		return true, nil
	}
	if r.Predicate != nil {
		return r.Predicate(record, exec)
	}
	if r.Expr == "" {
		return true, nil
	}

	prog := r.compiled
	if prog == nil {
		var err error
		prog, err = expr.Compile(r.Expr, expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile rls expression: %w", err)
		}
		r.compiled = prog
	}

	result, err := expr.Run(prog, map[string]any{"record": record, "ctx": exec})
	if err != nil {
		return false, fmt.Errorf("evaluate rls expression: %w", err)
	}
	allowed, _ := result.(bool)
	return allowed, nil
}

// Bypass grants unconditional access when the execution context carries one
// of the allowed values under Key.
type Bypass struct {
	Key    string
	Values []any
}

func (b Bypass) matches(exec map[string]any) bool {
	val, ok := exec[b.Key]
	if !ok {
		return false
	}
	for _, allowed := range b.Values {
		if fmt.Sprintf("%v", val) == fmt.Sprintf("%v", allowed) {
			return true
		}
	}
	return false
}

// FilterSet is the per-entity predicate set plus its bypass conditions.
type FilterSet struct {
	Select *Rule
	Insert *Rule
	Update *Rule
	Delete *Rule
	Bypass []Bypass
}

func (fs *FilterSet) bypassed(exec map[string]any) bool {
	for _, b := range fs.Bypass {
		if b.matches(exec) {
			return true
		}
	}
	return false
}

// Provider returns the current entity→filter-set mapping. It is re-fetched
// on every operation so policy can change without a restart.
type Provider func() map[string]*FilterSet

// RLS enforces row-level security around the terminal operation.
//
// Inserts are checked before the storage call. Update and delete predicates
// run after it, against the now-known row (for delete, the row the resolver
// captured before removing it). By then the mutation is already committed,
// so a denial here surfaces an error but cannot roll the write back. Known
// limitation: this check is defense-in-depth, not transactional isolation.
type RLS struct {
	Provider Provider
	Disabled bool
}

func (r *RLS) Name() string  { return "rls" }
func (r *RLS) Enabled() bool { return !r.Disabled }

func (r *RLS) filters(entity string) *FilterSet {
	if r.Provider == nil {
		return nil
	}
	return r.Provider()[entity]
}

func (r *RLS) Before(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	fs := r.filters(rc.Entity)
	if fs == nil || fs.bypassed(rc.Exec) {
		return nil, nil
	}

	switch rc.Op {
	case pipeline.OpCreate:
		if fs.Insert == nil {
			return nil, nil
		}
		allowed, err := fs.Insert.Allow(rc.Payload, rc.Exec)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, pipeline.AccessDenied(rc.Op, rc.Entity)
		}
	case pipeline.OpUpdate:
		if fs.Update != nil {
			// Target row unknown until the storage call completes.
			rc.Meta.PendingRLS = rc.Op
		}
	case pipeline.OpDelete:
		if fs.Delete != nil {
			rc.Meta.PendingRLS = rc.Op
		}
	}
	return nil, nil
}

func (r *RLS) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	fs := r.filters(rc.Entity)
	if fs == nil || fs.bypassed(rc.Exec) {
		return nil, nil
	}

	switch rc.Op {
	case pipeline.OpFindOne, pipeline.OpFindMany:
		return r.filterRead(rc, resp, fs)
	case pipeline.OpUpdate:
		if rc.Meta.PendingRLS != pipeline.OpUpdate {
			return nil, nil
		}
		return r.deferredCheck(rc, fs.Update, resp.Single())
	case pipeline.OpDelete:
		if rc.Meta.PendingRLS != pipeline.OpDelete {
			return nil, nil
		}
		return r.deferredCheck(rc, fs.Delete, rc.Meta.DeletedRecord)
	}
	return nil, nil
}

func (r *RLS) filterRead(rc *pipeline.RequestContext, resp *pipeline.Response, fs *FilterSet) (*pipeline.Response, error) {
	if fs.Select == nil {
		return nil, nil
	}

	switch data := resp.Data.(type) {
	case []map[string]any:
		visible := make([]map[string]any, 0, len(data))
		for _, rec := range data {
			allowed, err := fs.Select.Allow(rec, rc.Exec)
			if err != nil {
				return nil, err
			}
			if allowed {
				visible = append(visible, rec)
			}
		}
		filtered := len(data) - len(visible)
		if filtered == 0 {
			return nil, nil
		}
		rc.Meta.FilteredOut += filtered
		out := resp.Clone()
		out.Data = visible
		if out.Meta.Total >= filtered {
			out.Meta.Total -= filtered
		}
		return out, nil
	case map[string]any:
		allowed, err := fs.Select.Allow(data, rc.Exec)
		if err != nil {
			return nil, err
		}
		if allowed {
			return nil, nil
		}
		rc.Meta.FilteredOut++
		out := resp.Clone()
		out.Data = nil
		return out, nil
	}
	return nil, nil
}

func (r *RLS) deferredCheck(rc *pipeline.RequestContext, rule *Rule, record map[string]any) (*pipeline.Response, error) {
	if record == nil {
		return nil, nil
	}
	allowed, err := rule.Allow(record, rc.Exec)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, pipeline.AccessDenied(rc.Op, rc.Entity)
	}
	return nil, nil
}
