package resolver

import (
	"context"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/pipeline"
	"dataplane-backend/internal/store"
)

// embedKeyGuesses is the ordered list of conventional lookup keys tried
// when an embed does not name its foreign key explicitly.
var embedKeyGuesses = []string{"id", "slug", "code"}

// EmbedSpec pulls a full record of another entity into a view, looked up
// by a request parameter value.
type EmbedSpec struct {
	Entity string
	// Param names the request parameter holding the lookup value; defaults
	// to the view field name.
	Param string
	// ForeignKey overrides key guessing with an explicit lookup column.
	ForeignKey string
	// Includes are relation names resolved on the embedded record.
	Includes []string
}

// ViewField is one member of a view, in declaration order. Exactly one of
// Param, Embed, Computed, or Nested is set.
type ViewField struct {
	Name     string
	Param    string
	Embed    *EmbedSpec
	Computed *metadata.ComputedField
	Nested   []ViewField
}

// View is a named composite read: an ordered field list assembled from
// request parameters, embedded entity lookups, and computed values.
// Fields evaluate in declaration order, so computed fields may reference
// any field declared before them.
type View struct {
	Name   string
	Fields []ViewField
}

// ResolveViewOp serves OpView requests: the request's entity names the view.
func (c *CRUD) ResolveViewOp(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	v := c.views[rc.Entity]
	if v == nil {
		return nil, pipeline.NewError("UNKNOWN_VIEW", 500, "unknown view: "+rc.Entity)
	}
	out, err := c.ResolveView(ctx, v, rc.Params, resolutionContext(rc))
	if err != nil {
		return nil, err
	}
	return &pipeline.Response{Data: out}, nil
}

// ResolveView assembles the view's fields against the given parameters.
func (c *CRUD) ResolveView(ctx context.Context, v *View, params map[string]string, rctx *metadata.ResolutionContext) (map[string]any, error) {
	return c.resolveViewFields(ctx, v.Fields, params, rctx)
}

func (c *CRUD) resolveViewFields(ctx context.Context, fields []ViewField, params map[string]string, rctx *metadata.ResolutionContext) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for i := range fields {
		f := &fields[i]
		switch {
		case f.Param != "":
			out[f.Name] = params[f.Param]

		case f.Embed != nil:
			rec, err := c.resolveEmbed(ctx, f.Name, f.Embed, params, rctx)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				// Keep the absent case an untyped nil; assigning the nil
				// map directly would make out[f.Name] != nil.
				out[f.Name] = nil
			} else {
				out[f.Name] = rec
			}

		case f.Computed != nil:
			val, err := c.resolveViewComputed(ctx, f, out, rctx)
			if err != nil {
				return nil, err
			}
			out[f.Name] = val

		case len(f.Nested) > 0:
			sub, err := c.resolveViewFields(ctx, f.Nested, params, rctx)
			if err != nil {
				return nil, err
			}
			out[f.Name] = sub

		default:
			out[f.Name] = nil
		}
	}
	return out, nil
}

// resolveEmbed looks up the embedded record. With no explicit foreign key
// it tries the target's primary key, then conventional names, settling on
// the first one the schema actually defines.
func (c *CRUD) resolveEmbed(ctx context.Context, name string, spec *EmbedSpec, params map[string]string, rctx *metadata.ResolutionContext) (map[string]any, error) {
	target := c.registry.Get(spec.Entity)
	if target == nil {
		return nil, pipeline.UnknownRelation(name, spec.Entity)
	}

	param := spec.Param
	if param == "" {
		param = name
	}
	val, ok := params[param]
	if !ok || val == "" {
		return nil, nil
	}

	key := spec.ForeignKey
	if key == "" {
		key = guessEmbedKey(target)
	}

	rec, err := c.driver.FindOne(ctx, spec.Entity, map[string]any{key: val})
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.relations.ResolveOne(ctx, target, rec, spec.Includes); err != nil {
		return nil, err
	}
	if err := c.computed.ResolveRecord(ctx, target, rec, rctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func guessEmbedKey(target *metadata.Entity) string {
	if target.PrimaryKey.Field != "" {
		return target.PrimaryKey.Field
	}
	for _, cand := range embedKeyGuesses {
		if target.HasField(cand) {
			return cand
		}
	}
	return "id"
}

// resolveViewComputed evaluates a computed field against the view output
// assembled so far. Dependencies must be declared earlier in the view.
func (c *CRUD) resolveViewComputed(ctx context.Context, f *ViewField, out map[string]any, rctx *metadata.ResolutionContext) (any, error) {
	for _, dep := range f.Computed.DependsOn {
		if _, ok := out[dep]; !ok {
			return nil, pipeline.UnknownComputedField(f.Name, dep)
		}
	}
	return c.computed.value(ctx, f.Computed, out, rctx)
}
