package resolver

import (
	"context"
	"errors"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/pipeline"
	"dataplane-backend/internal/store"
)

// CRUD is the terminal resolver: it dispatches pipeline operations to the
// storage driver and hydrates results with relations and computed fields.
type CRUD struct {
	driver    store.Driver
	registry  *metadata.Registry
	relations *Relations
	computed  *Computed
	views     map[string]*View
}

func NewCRUD(d store.Driver, reg *metadata.Registry) *CRUD {
	return &CRUD{
		driver:    d,
		registry:  reg,
		relations: NewRelations(d, reg),
		computed:  NewComputed(d),
		views:     make(map[string]*View),
	}
}

// RegisterView makes a view addressable as an entity name under OpView.
func (c *CRUD) RegisterView(v *View) {
	c.views[v.Name] = v
}

// Terminal returns the chain terminal backed by this resolver.
func (c *CRUD) Terminal() pipeline.Terminal {
	return func(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
		switch rc.Op {
		case pipeline.OpFindOne:
			return c.ResolveOne(ctx, rc)
		case pipeline.OpFindMany:
			return c.ResolveMany(ctx, rc)
		case pipeline.OpCreate:
			return c.Create(ctx, rc)
		case pipeline.OpUpdate:
			return c.Update(ctx, rc)
		case pipeline.OpDelete:
			return c.Delete(ctx, rc)
		case pipeline.OpCount:
			return c.Count(ctx, rc)
		case pipeline.OpView:
			return c.ResolveViewOp(ctx, rc)
		default:
			return nil, pipeline.NewError("UNKNOWN_OPERATION", 400, "unknown operation: "+string(rc.Op))
		}
	}
}

func (c *CRUD) entity(rc *pipeline.RequestContext) (*metadata.Entity, error) {
	e := c.registry.Get(rc.Entity)
	if e == nil {
		return nil, pipeline.UnknownEntity(rc.Entity)
	}
	return e, nil
}

// whereFor builds the lookup condition: an explicit id param wins,
// otherwise the request filter applies as-is.
func whereFor(rc *pipeline.RequestContext, e *metadata.Entity) map[string]any {
	if id, ok := rc.Params["id"]; ok && id != "" {
		return map[string]any{e.PrimaryKey.Field: id}
	}
	where := make(map[string]any, len(rc.Filter))
	for k, v := range rc.Filter {
		where[k] = v
	}
	return where
}

func resolutionContext(rc *pipeline.RequestContext) *metadata.ResolutionContext {
	return &metadata.ResolutionContext{
		Mode:   metadata.ModeResolve,
		Params: rc.Params,
		Exec:   rc.Exec,
	}
}

// hydrate attaches relations and computed fields to a single record.
func (c *CRUD) hydrate(ctx context.Context, rc *pipeline.RequestContext, e *metadata.Entity, record map[string]any) error {
	if record == nil {
		return nil
	}
	if err := c.relations.ResolveOne(ctx, e, record, rc.Includes); err != nil {
		return err
	}
	return c.computed.ResolveRecord(ctx, e, record, resolutionContext(rc))
}

// ResolveOne fetches a single record. An absent row is an empty envelope,
// not an error.
func (c *CRUD) ResolveOne(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	e, err := c.entity(rc)
	if err != nil {
		return nil, err
	}

	rec, err := c.driver.FindOne(ctx, rc.Entity, whereFor(rc, e))
	if errors.Is(err, store.ErrNotFound) {
		return &pipeline.Response{}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.hydrate(ctx, rc, e, rec); err != nil {
		return nil, err
	}
	return &pipeline.Response{Data: project(rec, rc.Fields)}, nil
}

// ResolveMany fetches a filtered, sorted, paginated list. Relations load
// batched across the page; computed fields evaluate per record in a fresh
// pass each.
func (c *CRUD) ResolveMany(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	e, err := c.entity(rc)
	if err != nil {
		return nil, err
	}

	q := store.Query{
		Where:  rc.Filter,
		Limit:  rc.Page.Limit,
		Offset: rc.Page.Offset,
	}
	for _, s := range rc.Sorts {
		q.Sort = append(q.Sort, store.Sort{Field: s.Field, Desc: s.Desc})
	}

	res, err := c.driver.FindMany(ctx, rc.Entity, q)
	if err != nil {
		return nil, err
	}

	if err := c.relations.ResolveBatch(ctx, e, res.Records, rc.Includes); err != nil {
		return nil, err
	}
	rctx := resolutionContext(rc)
	for _, rec := range res.Records {
		if err := c.computed.ResolveRecord(ctx, e, rec, rctx); err != nil {
			return nil, err
		}
	}

	records := res.Records
	if len(rc.Fields) > 0 {
		records = make([]map[string]any, len(res.Records))
		for i, rec := range res.Records {
			records[i] = project(rec, rc.Fields)
		}
	}

	return &pipeline.Response{
		Data: records,
		Meta: pipeline.ResponseMeta{Total: res.Total, HasMore: res.HasMore},
	}, nil
}

// project narrows a hydrated record to the requested field set (field
// selection covers stored, computed, and relation names alike). An empty
// set selects everything.
func project(record map[string]any, fields []string) map[string]any {
	if len(fields) == 0 || record == nil {
		return record
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := record[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (c *CRUD) Create(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	e, err := c.entity(rc)
	if err != nil {
		return nil, err
	}

	rec, err := c.driver.Create(ctx, rc.Entity, rc.Payload)
	if err != nil {
		return nil, err
	}
	if err := c.hydrate(ctx, rc, e, rec); err != nil {
		return nil, err
	}
	return &pipeline.Response{Data: rec}, nil
}

func (c *CRUD) Update(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	e, err := c.entity(rc)
	if err != nil {
		return nil, err
	}

	rec, err := c.driver.Update(ctx, rc.Entity, whereFor(rc, e), rc.Payload)
	if errors.Is(err, store.ErrNotFound) {
		return &pipeline.Response{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := c.hydrate(ctx, rc, e, rec); err != nil {
		return nil, err
	}
	return &pipeline.Response{Data: rec}, nil
}

// Delete captures the row before removing it so deferred row-level checks
// still have something to evaluate.
func (c *CRUD) Delete(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	e, err := c.entity(rc)
	if err != nil {
		return nil, err
	}

	where := whereFor(rc, e)
	rec, err := c.driver.FindOne(ctx, rc.Entity, where)
	if errors.Is(err, store.ErrNotFound) {
		return &pipeline.Response{}, nil
	}
	if err != nil {
		return nil, err
	}
	rc.Meta.DeletedRecord = rec

	if err := c.driver.Delete(ctx, rc.Entity, where); err != nil {
		return nil, err
	}
	return &pipeline.Response{Data: rec}, nil
}

func (c *CRUD) Count(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	if _, err := c.entity(rc); err != nil {
		return nil, err
	}

	n, err := c.driver.Count(ctx, rc.Entity, rc.Filter)
	if err != nil {
		return nil, err
	}
	return &pipeline.Response{
		Data: n,
		Meta: pipeline.ResponseMeta{Total: int(n)},
	}, nil
}
