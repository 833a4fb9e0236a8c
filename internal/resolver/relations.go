package resolver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/store"
)

// Relations attaches related records under the relation names. The batch
// path issues one query per relation across the whole record set instead
// of one per parent record.
type Relations struct {
	driver   store.Driver
	registry *metadata.Registry
}

func NewRelations(d store.Driver, reg *metadata.Registry) *Relations {
	return &Relations{driver: d, registry: reg}
}

// relationsFor merges the requested includes with the entity's
// always-eager relations, preserving declaration order and skipping names
// the entity does not define.
func (r *Relations) relationsFor(e *metadata.Entity, includes []string) []*metadata.Relation {
	wanted := make(map[string]bool, len(includes))
	for _, name := range includes {
		wanted[name] = true
	}

	var out []*metadata.Relation
	for i := range e.Relations {
		rel := &e.Relations[i]
		if rel.Eager || wanted[rel.Name] {
			out = append(out, rel)
			delete(wanted, rel.Name)
		}
	}
	for name := range wanted {
		log.Debug().Str("entity", e.Name).Str("relation", name).Msg("ignoring unknown include")
	}
	return out
}

// ResolveOne loads the requested relations for a single record.
func (r *Relations) ResolveOne(ctx context.Context, e *metadata.Entity, record map[string]any, includes []string) error {
	if record == nil {
		return nil
	}
	for _, rel := range r.relationsFor(e, includes) {
		if err := r.attachOne(ctx, e, rel, record); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relations) attachOne(ctx context.Context, e *metadata.Entity, rel *metadata.Relation, record map[string]any) error {
	target := r.registry.Get(rel.Target)
	if target == nil {
		r.warnTarget(e, rel)
		record[rel.Name] = emptyValue(rel)
		return nil
	}

	localVal, ok := record[rel.LocalKey]
	if !ok || localVal == nil {
		record[rel.Name] = emptyValue(rel)
		return nil
	}

	switch rel.Kind {
	case metadata.BelongsTo, metadata.HasOne:
		rec, err := r.driver.FindOne(ctx, rel.Target, map[string]any{rel.ForeignKey: localVal})
		if err == store.ErrNotFound {
			record[rel.Name] = nil
			return nil
		}
		if err != nil {
			return err
		}
		record[rel.Name] = rec

	case metadata.HasMany:
		res, err := r.driver.FindMany(ctx, rel.Target, store.Query{
			Where: map[string]any{rel.ForeignKey: localVal},
		})
		if err != nil {
			return err
		}
		record[rel.Name] = res.Records

	case metadata.ManyToMany:
		links, err := r.driver.FindMany(ctx, rel.Through, store.Query{
			Where: map[string]any{rel.ThroughLocalKey: localVal},
		})
		if err != nil {
			return err
		}
		targetIDs := make([]any, 0, len(links.Records))
		for _, link := range links.Records {
			if id := link[rel.ThroughForeignKey]; id != nil {
				targetIDs = append(targetIDs, id)
			}
		}
		if len(targetIDs) == 0 {
			record[rel.Name] = []map[string]any{}
			return nil
		}
		res, err := r.driver.FindMany(ctx, rel.Target, store.Query{
			Where: map[string]any{target.PrimaryKey.Field + ".in": targetIDs},
		})
		if err != nil {
			return err
		}
		record[rel.Name] = res.Records

	default:
		return fmt.Errorf("relation %s.%s: unsupported kind %q", e.Name, rel.Name, rel.Kind)
	}
	return nil
}

// ResolveBatch loads relations for a whole result set. Fetches for
// different relations run concurrently; attaching is sequential because
// the record maps are shared.
func (r *Relations) ResolveBatch(ctx context.Context, e *metadata.Entity, records []map[string]any, includes []string) error {
	if len(records) == 0 {
		return nil
	}

	rels := r.relationsFor(e, includes)
	if len(rels) == 0 {
		return nil
	}

	attachers := make([]func(), len(rels))
	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			attach, err := r.batchLoader(gctx, e, rel, records)
			if err != nil {
				return err
			}
			attachers[i] = attach
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, attach := range attachers {
		attach()
	}
	return nil
}

// batchLoader fetches everything one relation needs for the record set and
// returns a closure that writes the values onto the parents.
func (r *Relations) batchLoader(ctx context.Context, e *metadata.Entity, rel *metadata.Relation, records []map[string]any) (func(), error) {
	target := r.registry.Get(rel.Target)
	if target == nil {
		r.warnTarget(e, rel)
		return func() {
			for _, rec := range records {
				rec[rel.Name] = emptyValue(rel)
			}
		}, nil
	}

	keys := localKeys(records, rel.LocalKey)
	if len(keys) == 0 {
		return func() {
			for _, rec := range records {
				rec[rel.Name] = emptyValue(rel)
			}
		}, nil
	}

	switch rel.Kind {
	case metadata.BelongsTo, metadata.HasOne:
		res, err := r.driver.FindMany(ctx, rel.Target, store.Query{
			Where: map[string]any{rel.ForeignKey + ".in": keys},
		})
		if err != nil {
			return nil, err
		}
		index := make(map[string]map[string]any, len(res.Records))
		for _, rec := range res.Records {
			index[keyString(rec[rel.ForeignKey])] = rec
		}
		return func() {
			for _, rec := range records {
				val := rec[rel.LocalKey]
				if val == nil {
					rec[rel.Name] = nil
					continue
				}
				rec[rel.Name] = index[keyString(val)]
			}
		}, nil

	case metadata.HasMany:
		res, err := r.driver.FindMany(ctx, rel.Target, store.Query{
			Where: map[string]any{rel.ForeignKey + ".in": keys},
		})
		if err != nil {
			return nil, err
		}
		grouped := groupBy(res.Records, rel.ForeignKey)
		return func() {
			for _, rec := range records {
				children := grouped[keyString(rec[rel.LocalKey])]
				if children == nil {
					children = []map[string]any{}
				}
				rec[rel.Name] = children
			}
		}, nil

	case metadata.ManyToMany:
		links, err := r.driver.FindMany(ctx, rel.Through, store.Query{
			Where: map[string]any{rel.ThroughLocalKey + ".in": keys},
		})
		if err != nil {
			return nil, err
		}

		targetIDs := make([]any, 0, len(links.Records))
		seen := make(map[string]bool)
		for _, link := range links.Records {
			id := link[rel.ThroughForeignKey]
			if id == nil || seen[keyString(id)] {
				continue
			}
			seen[keyString(id)] = true
			targetIDs = append(targetIDs, id)
		}

		byID := make(map[string]map[string]any, len(targetIDs))
		if len(targetIDs) > 0 {
			res, err := r.driver.FindMany(ctx, rel.Target, store.Query{
				Where: map[string]any{target.PrimaryKey.Field + ".in": targetIDs},
			})
			if err != nil {
				return nil, err
			}
			for _, rec := range res.Records {
				byID[keyString(rec[target.PrimaryKey.Field])] = rec
			}
		}

		perParent := make(map[string][]map[string]any)
		for _, link := range links.Records {
			parent := keyString(link[rel.ThroughLocalKey])
			if hit := byID[keyString(link[rel.ThroughForeignKey])]; hit != nil {
				perParent[parent] = append(perParent[parent], hit)
			}
		}
		return func() {
			for _, rec := range records {
				targets := perParent[keyString(rec[rel.LocalKey])]
				if targets == nil {
					targets = []map[string]any{}
				}
				rec[rel.Name] = targets
			}
		}, nil

	default:
		return nil, fmt.Errorf("relation %s.%s: unsupported kind %q", e.Name, rel.Name, rel.Kind)
	}
}

func (r *Relations) warnTarget(e *metadata.Entity, rel *metadata.Relation) {
	log.Warn().
		Str("entity", e.Name).
		Str("relation", rel.Name).
		Str("target", rel.Target).
		Msg("relation target not registered, resolving empty")
}

func emptyValue(rel *metadata.Relation) any {
	if rel.ToMany() {
		return []map[string]any{}
	}
	return nil
}

func localKeys(records []map[string]any, key string) []any {
	seen := make(map[string]bool, len(records))
	out := make([]any, 0, len(records))
	for _, rec := range records {
		val := rec[key]
		if val == nil || seen[keyString(val)] {
			continue
		}
		seen[keyString(val)] = true
		out = append(out, val)
	}
	return out
}

func groupBy(records []map[string]any, key string) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, rec := range records {
		k := keyString(rec[key])
		out[k] = append(out[k], rec)
	}
	return out
}

func keyString(v any) string {
	return fmt.Sprintf("%v", v)
}
